package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestaozabele/receitas/internal/db"
)

const dbTimeout = 5 * time.Second

const uniqueViolation = "23505"

// PostgresRepository implementa Repository sobre pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) ListCategories(ctx context.Context, userID uuid.UUID) ([]Category, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const query = `
        SELECT c.id, c.user_id, c.name, c.color, c.created_at,
               (SELECT count(*) FROM recipes r WHERE r.category_id = c.id)
        FROM categories c
        WHERE c.user_id = $1
        ORDER BY lower(c.name)`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.CreatedAt, &c.RecipeCount); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *PostgresRepository) CreateCategory(ctx context.Context, cat *Category) (*Category, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const query = `
        INSERT INTO categories (id, user_id, name, color)
        VALUES ($1, $2, $3, $4)
        RETURNING id, user_id, name, color, created_at`

	var out Category
	err := r.pool.QueryRow(ctx, query, cat.ID, cat.UserID, cat.Name, cat.Color).
		Scan(&out.ID, &out.UserID, &out.Name, &out.Color, &out.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (r *PostgresRepository) UpdateCategory(ctx context.Context, cat *Category) (*Category, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const query = `
        UPDATE categories SET name = $3, color = $4
        WHERE id = $1 AND user_id = $2
        RETURNING id, user_id, name, color, created_at,
                  (SELECT count(*) FROM recipes r WHERE r.category_id = categories.id)`

	var out Category
	err := r.pool.QueryRow(ctx, query, cat.ID, cat.UserID, cat.Name, cat.Color).
		Scan(&out.ID, &out.UserID, &out.Name, &out.Color, &out.CreatedAt, &out.RecipeCount)
	if err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (r *PostgresRepository) DeleteCategory(ctx context.Context, userID, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListCollections(ctx context.Context, userID uuid.UUID) ([]Collection, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const query = `
        SELECT c.id, c.user_id, c.name, c.description, c.created_at, c.updated_at,
               (SELECT count(*) FROM collection_recipes cr WHERE cr.collection_id = c.id)
        FROM collections c
        WHERE c.user_id = $1
        ORDER BY c.updated_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt, &c.RecipeCount); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *PostgresRepository) CreateCollection(ctx context.Context, col *Collection) (*Collection, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const query = `
        INSERT INTO collections (id, user_id, name, description)
        VALUES ($1, $2, $3, $4)
        RETURNING id, user_id, name, description, created_at, updated_at`

	var out Collection
	err := r.pool.QueryRow(ctx, query, col.ID, col.UserID, col.Name, col.Description).
		Scan(&out.ID, &out.UserID, &out.Name, &out.Description, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (r *PostgresRepository) GetCollection(ctx context.Context, userID, id uuid.UUID) (*CollectionDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var detail CollectionDetail
	err := r.pool.QueryRow(ctx, `
        SELECT id, user_id, name, description, created_at, updated_at
        FROM collections
        WHERE id = $1 AND user_id = $2`, id, userID).
		Scan(&detail.ID, &detail.UserID, &detail.Name, &detail.Description, &detail.CreatedAt, &detail.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}

	rows, err := r.pool.Query(ctx, `
        SELECT r.id, r.type, r.title, r.image_url, r.is_favorite, cr.added_at
        FROM collection_recipes cr
        JOIN recipes r ON r.id = cr.recipe_id
        WHERE cr.collection_id = $1
        ORDER BY cr.added_at DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s RecipeSummary
		if err := rows.Scan(&s.ID, &s.Type, &s.Title, &s.ImageURL, &s.IsFavorite, &s.AddedAt); err != nil {
			return nil, err
		}
		detail.Recipes = append(detail.Recipes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	detail.RecipeCount = len(detail.Recipes)
	return &detail, nil
}

func (r *PostgresRepository) DeleteCollection(ctx context.Context, userID, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM collections WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddRecipe confere a posse da coleção e da receita na mesma transação.
func (r *PostgresRepository) AddRecipe(ctx context.Context, userID, collectionID, recipeID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := lockCollection(ctx, tx, userID, collectionID); err != nil {
			return err
		}

		var owned bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM recipes WHERE id = $1 AND user_id = $2)`,
			recipeID, userID,
		).Scan(&owned); err != nil {
			return err
		}
		if !owned {
			return ErrRecipeNotFound
		}

		tag, err := tx.Exec(ctx, `
            INSERT INTO collection_recipes (collection_id, recipe_id)
            VALUES ($1, $2)
            ON CONFLICT DO NOTHING`, collectionID, recipeID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE collections SET updated_at = now() WHERE id = $1`, collectionID)
		return err
	})
}

func (r *PostgresRepository) RemoveRecipe(ctx context.Context, userID, collectionID, recipeID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := lockCollection(ctx, tx, userID, collectionID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM collection_recipes WHERE collection_id = $1 AND recipe_id = $2`,
			collectionID, recipeID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrRecipeNotFound
		}
		_, err = tx.Exec(ctx, `UPDATE collections SET updated_at = now() WHERE id = $1`, collectionID)
		return err
	})
}

func lockCollection(ctx context.Context, tx pgx.Tx, userID, collectionID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx,
		`SELECT id FROM collections WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		collectionID, userID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	return err
}

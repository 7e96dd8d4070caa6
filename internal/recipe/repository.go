package recipe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

const recipeColumns = `
        id, user_id, type, title, description, url, image_url, site_name, content,
        document_file_name, document_content_type, document_size, document_storage_key, document_url,
        category_id, tags, is_favorite, created_at, updated_at`

// PostgresRepository implementa Repository sobre pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository cria instância do repositório.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create insere a receita e, quando houver, o documento.
func (r *PostgresRepository) Create(ctx context.Context, rec *Recipe, doc *DocumentContent) (*Recipe, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `
        INSERT INTO recipes (
            id, user_id, type, title, description, url, image_url, site_name, content,
            document_file_name, document_content_type, document_size, document_storage_key, document_url, document_content,
            category_id, tags, is_favorite
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
        RETURNING` + recipeColumns

	d := documentColumns(doc)
	row := r.pool.QueryRow(ctx, query,
		rec.ID, rec.UserID, string(rec.Type), rec.Title, rec.Description, rec.URL, rec.ImageURL, rec.SiteName, rec.Content,
		d.fileName, d.contentType, d.size, d.storageKey, d.url, d.content,
		rec.CategoryID, tagsOrEmpty(rec.Tags), rec.IsFavorite,
	)
	return scanRecipe(row)
}

// Update grava todos os campos editáveis; doc não nulo substitui o documento.
func (r *PostgresRepository) Update(ctx context.Context, rec *Recipe, doc *DocumentContent) (*Recipe, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	setParts := []string{
		"title = $3", "description = $4", "url = $5", "image_url = $6", "site_name = $7",
		"content = $8", "category_id = $9", "tags = $10", "is_favorite = $11", "updated_at = now()",
	}
	args := []any{
		rec.ID, rec.UserID, rec.Title, rec.Description, rec.URL, rec.ImageURL, rec.SiteName,
		rec.Content, rec.CategoryID, tagsOrEmpty(rec.Tags), rec.IsFavorite,
	}

	if doc != nil {
		d := documentColumns(doc)
		setParts = append(setParts,
			"document_file_name = $12", "document_content_type = $13", "document_size = $14",
			"document_storage_key = $15", "document_url = $16", "document_content = $17")
		args = append(args, d.fileName, d.contentType, d.size, d.storageKey, d.url, d.content)
	}

	query := fmt.Sprintf(`
        UPDATE recipes
        SET %s
        WHERE id = $1 AND user_id = $2
        RETURNING %s`, strings.Join(setParts, ", "), recipeColumns)

	return scanRecipe(r.pool.QueryRow(ctx, query, args...))
}

// Get busca uma receita do usuário.
func (r *PostgresRepository) Get(ctx context.Context, userID, id uuid.UUID) (*Recipe, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `SELECT` + recipeColumns + `
        FROM recipes
        WHERE id = $1 AND user_id = $2`

	return scanRecipe(r.pool.QueryRow(ctx, query, id, userID))
}

// List aplica os filtros e devolve a página com o total.
func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Recipe, int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		clauses = []string{"user_id = $1"}
		args    = []any{filter.UserID}
		idx     = 2
	)

	if filter.CategoryID != nil {
		clauses = append(clauses, fmt.Sprintf("category_id = $%d", idx))
		args = append(args, *filter.CategoryID)
		idx++
	}
	if filter.Type != "" {
		clauses = append(clauses, fmt.Sprintf("type = $%d", idx))
		args = append(args, string(filter.Type))
		idx++
	}
	if filter.Tag != "" {
		clauses = append(clauses, fmt.Sprintf("$%d = ANY(tags)", idx))
		args = append(args, filter.Tag)
		idx++
	}
	if filter.Favorites {
		clauses = append(clauses, "is_favorite")
	}
	if filter.Query != "" {
		clauses = append(clauses, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d OR site_name ILIKE $%d)", idx, idx, idx))
		args = append(args, "%"+escapeLike(filter.Query)+"%")
		idx++
	}

	where := " WHERE " + strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM recipes"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT` + recipeColumns + ` FROM recipes` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var recipes []Recipe
	for rows.Next() {
		rec, err := scanRecipe(rows)
		if err != nil {
			return nil, 0, err
		}
		recipes = append(recipes, *rec)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return recipes, total, nil
}

// Delete remove a receita e devolve o documento associado, se houver.
func (r *PostgresRepository) Delete(ctx context.Context, userID, id uuid.UUID) (*DocumentInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const query = `
        DELETE FROM recipes
        WHERE id = $1 AND user_id = $2
        RETURNING document_file_name, document_content_type, document_size, document_storage_key, document_url`

	var (
		fileName, contentType, storageKey, docURL *string
		size                                      *int64
	)
	err := r.pool.QueryRow(ctx, query, id, userID).Scan(&fileName, &contentType, &size, &storageKey, &docURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return buildDocumentInfo(fileName, contentType, size, storageKey, docURL), nil
}

// SetFavorite altera a flag de favorita.
func (r *PostgresRepository) SetFavorite(ctx context.Context, userID, id uuid.UUID, favorite bool) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
        UPDATE recipes SET is_favorite = $3, updated_at = now()
        WHERE id = $1 AND user_id = $2`, id, userID, favorite)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Document carrega os bytes (ou a URL externa) do documento.
func (r *PostgresRepository) Document(ctx context.Context, userID, id uuid.UUID) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const query = `
        SELECT document_file_name, document_content_type, document_url, document_content
        FROM recipes
        WHERE id = $1 AND user_id = $2`

	var (
		fileName, contentType, docURL *string
		content                       []byte
	)
	if err := r.pool.QueryRow(ctx, query, id, userID).Scan(&fileName, &contentType, &docURL, &content); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if fileName == nil || (len(content) == 0 && docURL == nil) {
		return nil, ErrNoDocument
	}

	doc := &Document{FileName: *fileName, Content: content}
	if contentType != nil {
		doc.ContentType = *contentType
	}
	if docURL != nil {
		doc.URL = *docURL
	}
	return doc, nil
}

// Tags agrega as tags do usuário.
func (r *PostgresRepository) Tags(ctx context.Context, userID uuid.UUID) ([]TagCount, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	const query = `
        SELECT tag, count(*)
        FROM recipes, unnest(tags) AS tag
        WHERE user_id = $1
        GROUP BY tag
        ORDER BY count(*) DESC, tag ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []TagCount
	for rows.Next() {
		var t TagCount
		if err := rows.Scan(&t.Name, &t.Count); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// CategoryExists confirma que a categoria pertence ao usuário.
func (r *PostgresRepository) CategoryExists(ctx context.Context, userID, categoryID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1 AND user_id = $2)`,
		categoryID, userID,
	).Scan(&exists)
	return exists, err
}

type docColumns struct {
	fileName, contentType, storageKey, url *string
	size                                   *int64
	content                                []byte
}

func documentColumns(doc *DocumentContent) docColumns {
	if doc == nil {
		return docColumns{}
	}
	info := doc.Info
	d := docColumns{
		fileName:    &info.FileName,
		contentType: &info.ContentType,
		size:        &info.Size,
		url:         info.URL,
		content:     doc.Content,
	}
	if info.StorageKey != "" {
		d.storageKey = &info.StorageKey
	}
	return d
}

func buildDocumentInfo(fileName, contentType *string, size *int64, storageKey, docURL *string) *DocumentInfo {
	if fileName == nil {
		return nil
	}
	info := &DocumentInfo{FileName: *fileName, URL: docURL}
	if contentType != nil {
		info.ContentType = *contentType
	}
	if size != nil {
		info.Size = *size
	}
	if storageKey != nil {
		info.StorageKey = *storageKey
	}
	return info
}

func scanRecipe(row pgx.Row) (*Recipe, error) {
	var (
		rec                                       Recipe
		recType                                   string
		fileName, contentType, storageKey, docURL *string
		size                                      *int64
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &recType, &rec.Title, &rec.Description, &rec.URL, &rec.ImageURL, &rec.SiteName, &rec.Content,
		&fileName, &contentType, &size, &storageKey, &docURL,
		&rec.CategoryID, &rec.Tags, &rec.IsFavorite, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.Type = Type(recType)
	rec.Document = buildDocumentInfo(fileName, contentType, size, storageKey, docURL)
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	return &rec, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

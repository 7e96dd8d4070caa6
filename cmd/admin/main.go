package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gestaozabele/receitas/internal/account"
	"github.com/gestaozabele/receitas/internal/db"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	ctx := context.Background()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN")
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "migrate":
		if err := db.Migrate(ctx, pool, log.Logger); err != nil {
			log.Fatal().Err(err).Msg("falha ao aplicar migrations")
		}
	case "create-user":
		if err := runCreateUser(ctx, pool, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao criar usuário")
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "admin CLI")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  admin migrate")
	fmt.Fprintln(os.Stderr, "  echo 'senha' | admin create-user --email ana@example.com [--name \"Ana\"]")
}

func runCreateUser(ctx context.Context, pool *pgxpool.Pool, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		email = fs.String("email", "", "e-mail de login")
		name  = fs.String("name", "", "nome exibido (padrão: parte local do e-mail)")
	)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("email é obrigatório")
	}

	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && password == "" {
		return fmt.Errorf("ler senha da entrada padrão: %w", err)
	}

	service := account.NewService(account.NewRepository(pool), nil, 0, log.Logger)
	user, err := service.CreateUser(ctx, account.RegisterInput{
		Email:    *email,
		Name:     *name,
		Password: strings.TrimRight(password, "\r\n"),
	})
	if err != nil {
		return err
	}

	output, _ := json.MarshalIndent(user, "", "  ")
	fmt.Println(string(output))
	return nil
}

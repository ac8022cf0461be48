package db

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/jefjesuswt/accounts-server/internal/migrations"
)

func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// RunMigrations applies the embedded schema migrations. It opens its own
// short-lived database/sql handle because goose does not speak pgxpool.
func RunMigrations(ctx context.Context, url string) error {
	handle, err := sql.Open("pgx", url)
	if err != nil {
		return err
	}
	defer handle.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, handle, ".")
}

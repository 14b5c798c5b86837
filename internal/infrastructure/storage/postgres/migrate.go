package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"storecount/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the embedded DDL.
func Schema() string {
	return schemaSQL
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *Pool) error {
	// Simple protocol: the file holds several statements.
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Conn().PgConn().Exec(ctx, schemaSQL).ReadAll(); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Info(ctx, "database schema applied")
	return nil
}

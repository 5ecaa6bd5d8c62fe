package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"offer-parser/internal/model"
	"offer-parser/internal/repository"
)

// The registry keeps exactly one row.
const schemaRowID = 1

type SchemaRepository struct {
	db *sql.DB
}

func NewSchemaRepository(db *sql.DB) *SchemaRepository {
	return &SchemaRepository{db: db}
}

func (r *SchemaRepository) Get(ctx context.Context) (*model.Schema, error) {
	var raw []byte
	schema := &model.Schema{}
	err := r.db.QueryRowContext(ctx, `SELECT document, updated_at FROM parsing_schema WHERE id = $1`, schemaRowID).
		Scan(&raw, &schema.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NotFoundError("schema", "")
		}
		return nil, err
	}
	if schema.Document, err = model.DecodeDocument(raw); err != nil {
		return nil, err
	}
	schema.UpdatedAt = schema.UpdatedAt.UTC()
	return schema, nil
}

func (r *SchemaRepository) Save(ctx context.Context, schema *model.Schema) error {
	doc, err := encodeJSON(schema.Document, schema.Document == nil)
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	query := `
		INSERT INTO parsing_schema (id, document, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at`
	_, err = r.db.ExecContext(ctx, query, schemaRowID, doc, schema.UpdatedAt.UTC())
	return err
}

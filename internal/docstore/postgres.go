package docstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// NewPostgresStore はPostgreSQL（jsonb）を使用したGatewayを生成する。
// スキーマはdatabase.RunMigrationsで作成済みであること。
func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: postgresDialect{}, now: time.Now}
}

type postgresDialect struct{}

func (postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) fieldExpr(ph string) string { return "data -> " + ph + "::text" }

func (postgresDialect) fieldParam(field string) any { return field }

// jsonbの比較演算子は同じ型同士であれば数値・文字列として正しく比較される。
func (postgresDialect) valueExpr(ph string) string { return ph + "::jsonb" }

func (postgresDialect) valueParam(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode condition value: %w", err)
	}
	return string(b), nil
}

func (postgresDialect) dataParam(data map[string]any) (any, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return string(b), nil
}

func (postgresDialect) insertSQL() string {
	return `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`
}

func (postgresDialect) mergeSQL() string {
	return `UPDATE documents SET data = data || $3::jsonb WHERE collection = $1 AND id = $2`
}

func (postgresDialect) stableOrder() string { return "seq" }

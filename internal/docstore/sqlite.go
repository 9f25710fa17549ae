package docstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// NewSQLiteStore はSQLite（JSON1関数）を使用したGatewayを生成する。
// ローカル開発や単一サーバー構成向け。
func NewSQLiteStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: sqliteDialect{}, now: time.Now}
}

type sqliteDialect struct{}

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) fieldExpr(ph string) string { return "json_extract(data, " + ph + ")" }

func (sqliteDialect) fieldParam(field string) any { return "$." + field }

func (sqliteDialect) valueExpr(ph string) string { return ph }

// json_extractはJSONの真偽値を整数で返すため、比較値も整数に揃える。
func (sqliteDialect) valueParam(v any) (any, error) {
	switch t := v.(type) {
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string, float64, nil:
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported condition value type %T", v)
	}
}

func (sqliteDialect) dataParam(data map[string]any) (any, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return string(b), nil
}

func (sqliteDialect) insertSQL() string {
	return `INSERT INTO documents (collection, id, data) VALUES (?, ?, json(?))`
}

func (sqliteDialect) mergeSQL() string {
	return `UPDATE documents SET data = json_patch(data, json(?3)) WHERE collection = ?1 AND id = ?2`
}

func (sqliteDialect) stableOrder() string { return "rowid" }

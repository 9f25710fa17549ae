package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
)

// sqlDialect はSQLバックエンドごとのJSON操作の差分を吸収する。
type sqlDialect interface {
	placeholder(n int) string
	// fieldExpr はJSONフィールドを取り出す式を返す。phはフィールドパラメータのプレースホルダ。
	fieldExpr(ph string) string
	fieldParam(field string) any
	// valueExpr は比較値の式を返す。
	valueExpr(ph string) string
	valueParam(v any) (any, error)
	dataParam(data map[string]any) (any, error)
	insertSQL() string
	mergeSQL() string
	stableOrder() string
}

// SQLStore はdatabase/sql上に構築したGateway実装。
// documentsテーブル1つに全コレクションをJSONで保存する。
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect
	now     func() time.Time
}

// WithClock はupdatedAtの付与に使う時計を差し替える。テスト用。
func (s *SQLStore) WithClock(now func() time.Time) *SQLStore {
	s.now = now
	return s
}

// Create はドキュメントを新規作成する。
func (s *SQLStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	payload, err := s.dialect.dataParam(normalizeData(data))
	if err != nil {
		return "", wrapErr("create", collection, err)
	}
	id := xid.New().String()
	if _, err := s.db.ExecContext(ctx, s.dialect.insertSQL(), collection, id, payload); err != nil {
		return "", wrapErr("create", collection, fmt.Errorf("failed to insert document: %w", err))
	}
	return id, nil
}

// GetOne は指定IDのドキュメントを取得する。見つからない場合はnilを返す。
func (s *SQLStore) GetOne(ctx context.Context, collection, id string) (*Document, error) {
	query := fmt.Sprintf(`SELECT data FROM documents WHERE collection = %s AND id = %s`,
		s.dialect.placeholder(1), s.dialect.placeholder(2))

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("getOne", collection, fmt.Errorf("failed to find document: %w", err))
	}

	data, err := decodeData(raw)
	if err != nil {
		return nil, wrapErr("getOne", collection, err)
	}
	return &Document{ID: id, Data: data}, nil
}

// GetMany は条件に一致するドキュメントを取得する。
func (s *SQLStore) GetMany(ctx context.Context, collection string, conditions []Condition, order *Order) ([]Document, error) {
	if err := validateQuery(conditions, order); err != nil {
		return nil, wrapErr("getMany", collection, err)
	}

	args := []any{collection}
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT id, data FROM documents WHERE collection = %s`, s.dialect.placeholder(1))

	for _, c := range conditions {
		args = append(args, s.dialect.fieldParam(c.Field))
		fieldPh := s.dialect.placeholder(len(args))

		value, err := s.dialect.valueParam(normalizeValue(c.Value))
		if err != nil {
			return nil, wrapErr("getMany", collection, err)
		}
		args = append(args, value)
		valuePh := s.dialect.placeholder(len(args))

		fmt.Fprintf(&b, ` AND %s %s %s`, s.dialect.fieldExpr(fieldPh), sqlOperators[c.Op], s.dialect.valueExpr(valuePh))
	}

	if order != nil {
		args = append(args, s.dialect.fieldParam(order.Field))
		dir := "ASC"
		if order.Direction == Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, ` ORDER BY %s %s, %s`, s.dialect.fieldExpr(s.dialect.placeholder(len(args))), dir, s.dialect.stableOrder())
	} else {
		fmt.Fprintf(&b, ` ORDER BY %s`, s.dialect.stableOrder())
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, wrapErr("getMany", collection, fmt.Errorf("failed to query documents: %w", err))
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, wrapErr("getMany", collection, fmt.Errorf("failed to scan document: %w", err))
		}
		data, err := decodeData(raw)
		if err != nil {
			return nil, wrapErr("getMany", collection, err)
		}
		docs = append(docs, Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("getMany", collection, fmt.Errorf("failed to iterate documents: %w", err))
	}

	return docs, nil
}

// Update は指定フィールドのみを更新し、updatedAtを付与する。
func (s *SQLStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	patch := normalizeData(partial)
	patch[UpdatedAtField] = normalizeValue(s.now())

	payload, err := s.dialect.dataParam(patch)
	if err != nil {
		return wrapErr("update", collection, err)
	}

	result, err := s.db.ExecContext(ctx, s.dialect.mergeSQL(), collection, id, payload)
	if err != nil {
		return wrapErr("update", collection, fmt.Errorf("failed to update document: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapErr("update", collection, fmt.Errorf("failed to get rows affected: %w", err))
	}
	if affected == 0 {
		return wrapErr("update", collection, ErrNotFound)
	}
	return nil
}

// Delete は指定IDのドキュメントを削除する。
func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	query := fmt.Sprintf(`DELETE FROM documents WHERE collection = %s AND id = %s`,
		s.dialect.placeholder(1), s.dialect.placeholder(2))
	if _, err := s.db.ExecContext(ctx, query, collection, id); err != nil {
		return wrapErr("delete", collection, fmt.Errorf("failed to delete document: %w", err))
	}
	return nil
}

func decodeData(raw []byte) (map[string]any, error) {
	data := make(map[string]any)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return data, nil
}

// compile-time interface check
var _ Gateway = (*SQLStore)(nil)

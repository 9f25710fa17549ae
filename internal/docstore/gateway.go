// Package docstore はコレクション単位の汎用ドキュメントCRUD（Document Gateway）を提供する。
//
// どのバックエンド（memory, postgres, sqlite, firestore）でも同じ契約を満たす。
//   - 返却されるドキュメントには生成済みIDが付与される
//   - Updateはゲートウェイ側でupdatedAtを付与する
//   - バックエンドの失敗はすべて *Error として返し、自動リトライは行わない
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/hitoshi/postboard/internal/model"
)

// UpdatedAtField はUpdate時にゲートウェイが付与するフィールド名。
const UpdatedAtField = "updatedAt"

// Operator はクエリ条件の比較演算子。
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
)

// Direction は並び替えの方向。
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Condition はフィールドに対する1つの条件。複数指定時はANDで結合する。
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// Where はConditionを生成する。
func Where(field string, op Operator, value any) Condition {
	return Condition{Field: field, Op: op, Value: value}
}

// Order は並び替え条件。
type Order struct {
	Field     string
	Direction Direction
}

// Document はIDを付与されたドキュメント。
type Document struct {
	ID   string
	Data map[string]any
}

// Gateway はドキュメントストアへの狭いCRUDインターフェース。
type Gateway interface {
	// Create はドキュメントを新規作成し、生成されたIDを返す。
	Create(ctx context.Context, collection string, data map[string]any) (string, error)

	// GetOne は指定IDのドキュメントを取得する。見つからない場合はnilを返す。
	GetOne(ctx context.Context, collection, id string) (*Document, error)

	// GetMany は条件に一致するドキュメントを取得する。orderがnilの場合はストアの順序に従う。
	GetMany(ctx context.Context, collection string, conditions []Condition, order *Order) ([]Document, error)

	// Update は指定フィールドのみを更新し、updatedAtを付与する。
	// ドキュメントが存在しない場合はErrNotFoundをラップしたエラーを返す。
	Update(ctx context.Context, collection, id string, partial map[string]any) error

	// Delete は指定IDのドキュメントを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, collection, id string) error
}

var (
	// ErrNotFound は更新対象のドキュメントが存在しないことを表す。
	ErrNotFound = errors.New("document not found")
	// ErrInvalidQuery はフィールド名や演算子が不正なことを表す。
	ErrInvalidQuery = errors.New("invalid query")
)

// Error はバックエンド操作の失敗を表す単一のエラー型。
// 操作名と元のエラーメッセージを保持する。
type Error struct {
	Op         string
	Collection string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("docstore: %s %s: %v", e.Op, e.Collection, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

func wrapErr(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Op: op, Collection: collection, Err: err}
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateQuery はSQLに埋め込まれるフィールド名と演算子を検証する。
func validateQuery(conditions []Condition, order *Order) error {
	for _, c := range conditions {
		if !fieldPattern.MatchString(c.Field) {
			return fmt.Errorf("%w: field %q", ErrInvalidQuery, c.Field)
		}
		if _, ok := sqlOperators[c.Op]; !ok {
			return fmt.Errorf("%w: operator %q", ErrInvalidQuery, c.Op)
		}
	}
	if order != nil {
		if !fieldPattern.MatchString(order.Field) {
			return fmt.Errorf("%w: order field %q", ErrInvalidQuery, order.Field)
		}
		if order.Direction != Asc && order.Direction != Desc && order.Direction != "" {
			return fmt.Errorf("%w: direction %q", ErrInvalidQuery, order.Direction)
		}
	}
	return nil
}

var sqlOperators = map[Operator]string{
	OpEqual:        "=",
	OpNotEqual:     "<>",
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
}

// normalizeValue は保存・比較用に値を正規化する。
// time.Timeは固定長UTC文字列に、整数はfloat64に揃える。
func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return model.FormatTime(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return model.FormatTime(*t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case map[string]any:
		return normalizeData(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

// normalizeData はドキュメント全体を正規化したコピーを返す。
func normalizeData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = normalizeValue(v)
	}
	return out
}

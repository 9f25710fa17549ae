package model

import (
	"fmt"
	"time"
)

// TimeLayout はドキュメントに時刻を文字列で保存する際のレイアウト。
// 固定長のため辞書順と時系列順が一致する。
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime は時刻を保存用の固定長UTC文字列に変換する。
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// TimeValue はドキュメントのフィールド値を時刻として解釈する。
// time.Time、保存用文字列、RFC3339文字列を受け付け、解釈できない場合はゼロ値を返す。
func TimeValue(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t == nil {
			return time.Time{}
		}
		return *t
	case string:
		if parsed, err := time.Parse(TimeLayout, t); err == nil {
			return parsed
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// StringValue はドキュメントのフィールド値を文字列として解釈する。
// nilは空文字列になる。
func StringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

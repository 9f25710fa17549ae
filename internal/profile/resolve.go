// Package profile はマイページのプロフィール表示とプロフィールの解決を提供する。
package profile

import (
	"context"
	"fmt"

	"github.com/hitoshi/postboard/internal/docstore"
	"github.com/hitoshi/postboard/internal/model"
)

// Resolve はセッションに対応するプロフィールを返す。
//
// accountIdが一致するドキュメントを優先し、見つからない場合はメールアドレスの
// 完全一致で検索する。どちらも見つからない場合はProfileNotFoundエラーを返す。
func Resolve(ctx context.Context, store docstore.Gateway, s *model.Session) (*model.Profile, error) {
	if s == nil {
		return nil, model.NewUnauthenticatedError()
	}

	if s.Identifier != "" {
		p, err := findOne(ctx, store, "accountId", s.Identifier)
		if err != nil || p != nil {
			return p, err
		}
	}
	if s.Email != "" {
		p, err := findOne(ctx, store, "email", s.Email)
		if err != nil || p != nil {
			return p, err
		}
	}
	return nil, model.NewProfileNotFoundError()
}

func findOne(ctx context.Context, store docstore.Gateway, field, value string) (*model.Profile, error) {
	docs, err := store.GetMany(ctx, model.CollectionProfiles,
		[]docstore.Condition{docstore.Where(field, docstore.OpEqual, value)}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile by %s: %w", field, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return model.ProfileFromData(docs[0].ID, docs[0].Data), nil
}

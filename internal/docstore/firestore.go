package docstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore はCloud Firestoreを使用したGateway実装。
// ドキュメントIDはFirestoreが採番する。
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore は指定プロジェクトのFirestoreクライアントを生成する。
// 認証情報はApplication Default Credentialsから取得する。
func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

// Close はFirestoreクライアントを閉じる。
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// Create はドキュメントを新規作成する。
func (s *FirestoreStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, normalizeData(data))
	if err != nil {
		return "", wrapErr("create", collection, err)
	}
	return ref.ID, nil
}

// GetOne は指定IDのドキュメントを取得する。見つからない場合はnilを返す。
func (s *FirestoreStore) GetOne(ctx context.Context, collection, id string) (*Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("getOne", collection, err)
	}
	return &Document{ID: snap.Ref.ID, Data: normalizeData(snap.Data())}, nil
}

// GetMany は条件に一致するドキュメントを取得する。
func (s *FirestoreStore) GetMany(ctx context.Context, collection string, conditions []Condition, order *Order) ([]Document, error) {
	if err := validateQuery(conditions, order); err != nil {
		return nil, wrapErr("getMany", collection, err)
	}

	q := s.client.Collection(collection).Query
	for _, c := range conditions {
		q = q.Where(c.Field, string(c.Op), normalizeValue(c.Value))
	}
	if order != nil {
		dir := firestore.Asc
		if order.Direction == Desc {
			dir = firestore.Desc
		}
		q = q.OrderBy(order.Field, dir)
	}

	it := q.Documents(ctx)
	defer it.Stop()

	var docs []Document
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapErr("getMany", collection, err)
		}
		docs = append(docs, Document{ID: snap.Ref.ID, Data: normalizeData(snap.Data())})
	}
	return docs, nil
}

// Update は指定フィールドのみを更新し、updatedAtにサーバー時刻を設定する。
func (s *FirestoreStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	updates := make([]firestore.Update, 0, len(partial)+1)
	for k, v := range normalizeData(partial) {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	updates = append(updates, firestore.Update{Path: UpdatedAtField, Value: firestore.ServerTimestamp})

	_, err := s.client.Collection(collection).Doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return wrapErr("update", collection, ErrNotFound)
	}
	if err != nil {
		return wrapErr("update", collection, err)
	}
	return nil
}

// Delete は指定IDのドキュメントを削除する。存在しない場合もエラーにしない。
func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return wrapErr("delete", collection, err)
	}
	return nil
}

// compile-time interface check
var _ Gateway = (*FirestoreStore)(nil)

package docstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
)

// MemoryStore はプロセス内にドキュメントを保持するGateway実装。
// テストおよびSTORE_DRIVER=memoryでの開発用途を想定する。
// 挿入順をストアの安定順序として保持する。
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	now         func() time.Time
	failures    map[string]error
}

type memoryCollection struct {
	order []string
	docs  map[string]map[string]any
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
		now:         time.Now,
	}
}

// WithClock はupdatedAtの付与に使う時計を差し替える。テスト用。
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// FailOn は指定操作（create, getOne, getMany, update, delete）が常にerrを返すよう設定する。
// errにnilを渡すと解除する。テストでのバックエンド障害の再現用。
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures == nil {
		s.failures = make(map[string]error)
	}
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *MemoryStore) check(ctx context.Context, op, collection string) error {
	if err := ctx.Err(); err != nil {
		return wrapErr(op, collection, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.failures[op]; ok {
		return wrapErr(op, collection, err)
	}
	return nil
}

// Put は指定IDでドキュメントを直接保存する。テストデータの投入用。
func (s *MemoryStore) Put(collection, id string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = normalizeData(data)
}

// Create はドキュメントを新規作成する。
func (s *MemoryStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := s.check(ctx, "create", collection); err != nil {
		return "", err
	}
	id := xid.New().String()
	s.Put(collection, id, data)
	return id, nil
}

// GetOne は指定IDのドキュメントを取得する。
func (s *MemoryStore) GetOne(ctx context.Context, collection, id string) (*Document, error) {
	if err := s.check(ctx, "getOne", collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil, nil
	}
	data, ok := c.docs[id]
	if !ok {
		return nil, nil
	}
	return &Document{ID: id, Data: copyData(data)}, nil
}

// GetMany は条件に一致するドキュメントを取得する。
func (s *MemoryStore) GetMany(ctx context.Context, collection string, conditions []Condition, order *Order) ([]Document, error) {
	if err := s.check(ctx, "getMany", collection); err != nil {
		return nil, err
	}
	if err := validateQuery(conditions, order); err != nil {
		return nil, wrapErr("getMany", collection, err)
	}

	s.mu.RLock()
	var docs []Document
	if c, ok := s.collections[collection]; ok {
		for _, id := range c.order {
			data := c.docs[id]
			if matchesAll(data, conditions) {
				docs = append(docs, Document{ID: id, Data: copyData(data)})
			}
		}
	}
	s.mu.RUnlock()

	if order != nil {
		sort.SliceStable(docs, func(i, j int) bool {
			cmp, _ := compareValues(docs[i].Data[order.Field], docs[j].Data[order.Field])
			if order.Direction == Desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	return docs, nil
}

// Update は指定フィールドのみを更新する。
func (s *MemoryStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	if err := s.check(ctx, "update", collection); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return wrapErr("update", collection, ErrNotFound)
	}
	data, ok := c.docs[id]
	if !ok {
		return wrapErr("update", collection, ErrNotFound)
	}
	for k, v := range partial {
		data[k] = normalizeValue(v)
	}
	data[UpdatedAtField] = normalizeValue(s.now())
	return nil
}

// Delete は指定IDのドキュメントを削除する。
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.check(ctx, "delete", collection); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil
	}
	if _, ok := c.docs[id]; !ok {
		return nil
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) collection(name string) *memoryCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{docs: make(map[string]map[string]any)}
		s.collections[name] = c
	}
	return c
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func matchesAll(data map[string]any, conditions []Condition) bool {
	for _, c := range conditions {
		if !matches(data[c.Field], c.Op, normalizeValue(c.Value)) {
			return false
		}
	}
	return true
}

func matches(actual any, op Operator, expected any) bool {
	cmp, comparable := compareValues(actual, expected)
	switch op {
	case OpEqual:
		return comparable && cmp == 0
	case OpNotEqual:
		return !comparable || cmp != 0
	case OpLess:
		return comparable && cmp < 0
	case OpLessEqual:
		return comparable && cmp <= 0
	case OpGreater:
		return comparable && cmp > 0
	case OpGreaterEqual:
		return comparable && cmp >= 0
	default:
		return false
	}
}

// compareValues は正規化済みの2値を比較する。
// 型が異なる場合は比較不能としてfalseを返す（並び替えでは同順位として扱う）。
func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case nil:
		if b == nil {
			return 0, true
		}
		return 0, false
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// compile-time interface check
var _ Gateway = (*MemoryStore)(nil)

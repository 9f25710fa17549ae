package docstore

import (
	"context"
	"time"

	"github.com/hitoshi/postboard/internal/metrics"
)

// Instrumented は操作ごとの件数とレイテンシを記録するGatewayデコレータ。
type Instrumented struct {
	next    Gateway
	metrics metrics.MetricsCollector
}

// NewInstrumented はnextをラップしたGatewayを返す。
func NewInstrumented(next Gateway, m metrics.MetricsCollector) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (g *Instrumented) record(op string, start time.Time, err error) {
	g.metrics.RecordGatewayOp(op, err != nil, time.Since(start))
}

// Create はドキュメント作成を計測する。
func (g *Instrumented) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	start := time.Now()
	id, err := g.next.Create(ctx, collection, data)
	g.record("create", start, err)
	return id, err
}

// GetOne は単一取得を計測する。
func (g *Instrumented) GetOne(ctx context.Context, collection, id string) (*Document, error) {
	start := time.Now()
	doc, err := g.next.GetOne(ctx, collection, id)
	g.record("getOne", start, err)
	return doc, err
}

// GetMany は条件取得を計測する。
func (g *Instrumented) GetMany(ctx context.Context, collection string, conditions []Condition, order *Order) ([]Document, error) {
	start := time.Now()
	docs, err := g.next.GetMany(ctx, collection, conditions, order)
	g.record("getMany", start, err)
	return docs, err
}

// Update は部分更新を計測する。
func (g *Instrumented) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	start := time.Now()
	err := g.next.Update(ctx, collection, id, partial)
	g.record("update", start, err)
	return err
}

// Delete は削除を計測する。
func (g *Instrumented) Delete(ctx context.Context, collection, id string) error {
	start := time.Now()
	err := g.next.Delete(ctx, collection, id)
	g.record("delete", start, err)
	return err
}

// compile-time interface check
var _ Gateway = (*Instrumented)(nil)

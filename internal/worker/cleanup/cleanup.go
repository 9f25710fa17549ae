// Package cleanup は期限切れデータの定期削除ジョブを提供する。
// 有効期限を過ぎた認証セッションをドキュメントストアから削除し、
// 一定時間アクセスのないワークスペースをメモリから破棄する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPurger は期限切れの認証セッションを削除する。identity.Serviceが実装する。
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int, error)
}

// WorkspaceEvicter はアイドル状態のワークスペースを破棄する。client.Registryが実装する。
type WorkspaceEvicter interface {
	EvictIdle(ctx context.Context) int
}

// CleanupJob は認証セッションとワークスペースのクリーンアップジョブ。
// 冪等な削除処理で、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	sessions   SessionPurger
	workspaces WorkspaceEvicter
	logger     *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
// workspacesがnilの場合（workerモード）はワークスペースの破棄を行わない。
func NewCleanupJob(sessions SessionPurger, workspaces WorkspaceEvicter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions:   sessions,
		workspaces: workspaces,
		logger:     logger,
	}
}

// Run はクリーンアップを1回実行する。
// ワークスペースの破棄は認証セッションの削除に失敗しても実行する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	evicted := 0
	if j.workspaces != nil {
		evicted = j.workspaces.EvictIdle(ctx)
	}

	purged, err := j.sessions.PurgeExpiredSessions(ctx)
	if err != nil {
		j.logger.Error("認証セッションのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("evicted_workspaces", evicted),
		)
		return fmt.Errorf("認証セッションのクリーンアップに失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int("purged_sessions", purged),
		slog.Int("evicted_workspaces", evicted),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// Start はinterval間隔でクリーンアップを実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました", slog.Duration("interval", interval))

	// 失敗はRun内でログ出力済み
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}

// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// セッションはcreated_atからの固定TTLで失効するため、
// TTLを過ぎた行を物理削除するだけで整合性が保たれる。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/playscore/internal/metrics"
)

// Executor はDB実行のための最小インターフェース。
// *sql.DB がこのインターフェースを満たす。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SessionSweeper は期限切れセッションを一括削除するジョブ。
// TTLはセッションの有効期間（設定のSESSION_TTLと同じ値）を指定する。
type SessionSweeper struct {
	db      Executor
	logger  *slog.Logger
	metrics metrics.MetricsCollector

	// TTL はセッションの有効期間。これより古いセッションが削除対象になる。
	TTL time.Duration
}

// NewSessionSweeper はSessionSweeperの新しいインスタンスを生成する。
// TTLのデフォルトは14日。collectorはnil可（メトリクスを記録しない）。
func NewSessionSweeper(db Executor, logger *slog.Logger, collector metrics.MetricsCollector) *SessionSweeper {
	return &SessionSweeper{
		db:      db,
		logger:  logger,
		metrics: collector,
		TTL:     14 * 24 * time.Hour,
	}
}

// Run は期限切れセッションを1回削除する。
// 削除対象が0件でもエラーにはならない（冪等）。
func (s *SessionSweeper) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d seconds", int64(s.TTL.Seconds()))
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE created_at < now() - $1::interval`,
		interval,
	)
	if err != nil {
		s.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSessionsCleaned(deleted)
	}

	duration := time.Since(start)
	s.logger.Info("期限切れセッションを削除しました",
		slog.Int64("deleted_count", deleted),
		slog.String("session_ttl", s.TTL.String()),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は指定間隔のティッカーでスイープを起動する。
// 起動直後に1回実行し、以降コンテキストがキャンセルされるまで繰り返す。
func (s *SessionSweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("セッションスイーパーを開始しました",
		slog.Duration("interval", interval),
		slog.String("session_ttl", s.TTL.String()),
	)

	if err := s.Run(ctx); err != nil {
		s.logger.Error("セッションスイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("セッションスイーパーを停止しました")
			return
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("セッションスイープの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

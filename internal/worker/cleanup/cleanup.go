// Package cleanup は期限切れデータの定期削除ジョブを提供する。
// レート制限カウンタと失効済みリフレッシュトークンを対象とし、
// ワーカープロセスから一定間隔で実行する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Purger は期限切れの行を削除し、削除件数を返す。
// ratelimit.PostgresStore と repository.PostgresRefreshTokenRepo が実装する。
type Purger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Target は削除対象の名前と削除処理の組。
type Target struct {
	Name   string
	Purger Purger
}

// CleanupJob は期限切れデータの削除ジョブ。
// 冪等な削除処理のみを行うため、複数ワーカーから同時に実行してもよい。
type CleanupJob struct {
	targets []Target
	logger  *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(logger *slog.Logger, targets ...Target) *CleanupJob {
	return &CleanupJob{
		targets: targets,
		logger:  logger,
	}
}

// Run はすべての対象から期限切れの行を削除する。
// 1つの対象が失敗しても残りの対象は処理し、失敗をまとめて返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	var errs []error
	for _, t := range j.targets {
		start := time.Now()

		deleted, err := t.Purger.DeleteExpired(ctx)
		if err != nil {
			j.logger.Error("クリーンアップに失敗しました",
				slog.String("target", t.Name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("cleanup %s: %w", t.Name, err))
			continue
		}

		j.logger.Info("クリーンアップが完了しました",
			slog.String("target", t.Name),
			slog.Int64("deleted_count", deleted),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}
	return errors.Join(errs...)
}

// Start は起動直後に1回、以後interval毎にRunを実行する。ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *CleanupJob) runOnce(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}

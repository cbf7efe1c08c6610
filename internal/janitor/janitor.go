// Package janitor は期限切れのアクティベーションコードと放置された未有効化ユーザーを定期的に削除する。
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/pkg/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper はアクセスの無くなったエントリを削除できるキャッシュ。
type Sweeper interface {
	Cleanup(idle time.Duration) int
}

// Options はJanitorの設定。
type Options struct {
	// Schedule はcron形式の実行スケジュール（例: "@every 10m"）。
	Schedule string
	// InactiveUserTTL は未有効化ユーザーを残しておく期間。
	InactiveUserTTL time.Duration
	// LimiterIdle はレートリミッターのエントリを残しておく期間。
	LimiterIdle time.Duration
}

// Result は1回のクリーンアップで削除した件数。
type Result struct {
	ExpiredCodes  int64
	InactiveCodes int64
	InactiveUsers int64
	Limiters      int
}

// Janitor は定期クリーンアップを実行する。
type Janitor struct {
	store    *db.Store
	limiters []Sweeper
	opts     Options
	logger   *zap.Logger
	cron     *cron.Cron
	now      func() time.Time
}

// New は新しいJanitorを生成する。limitersは併せて掃除するレートリミッター。
func New(store *db.Store, opts Options, logger *zap.Logger, limiters ...Sweeper) *Janitor {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	return &Janitor{
		store:    store,
		limiters: limiters,
		opts:     opts,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start は起動時に1回クリーンアップを実行し、スケジュールに従った定期実行を開始する。
func (j *Janitor) Start(ctx context.Context) error {
	if _, err := j.cron.AddFunc(j.opts.Schedule, func() { j.run(ctx) }); err != nil {
		return fmt.Errorf("クリーンアップのスケジュール %q の解析に失敗: %w", j.opts.Schedule, err)
	}
	j.run(ctx)
	j.cron.Start()
	j.logger.Info("定期クリーンアップを開始", zap.String("schedule", j.opts.Schedule))
	return nil
}

// Stop は定期実行を止め、実行中のジョブの完了を待つ。
func (j *Janitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
		j.logger.Warn("実行中のクリーンアップの完了を待たずに停止")
	}
}

func (j *Janitor) run(ctx context.Context) {
	result, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.Error("クリーンアップに失敗", zap.Error(err))
		return
	}
	j.logger.Info("クリーンアップを実行",
		zap.Int64("expired_codes", result.ExpiredCodes),
		zap.Int64("inactive_codes", result.InactiveCodes),
		zap.Int64("inactive_users", result.InactiveUsers),
		zap.Int("rate_limiters", result.Limiters),
	)
}

// RunOnce はクリーンアップを1回実行する。
// 未有効化ユーザーはコードを先に削除してから同じトランザクションで削除する。
func (j *Janitor) RunOnce(ctx context.Context) (Result, error) {
	var result Result
	now := j.now()
	before := now.Add(-j.opts.InactiveUserTTL)

	err := j.store.ExecTx(ctx, func(q *db.Queries) error {
		var err error
		if result.ExpiredCodes, err = q.DeleteExpiredActivationCodes(ctx, now); err != nil {
			return fmt.Errorf("期限切れコードの削除に失敗: %w", err)
		}
		if result.InactiveCodes, err = q.DeleteActivationCodesOfInactiveUsersBefore(ctx, before); err != nil {
			return fmt.Errorf("未有効化ユーザーのコードの削除に失敗: %w", err)
		}
		if result.InactiveUsers, err = q.DeleteInactiveUsersBefore(ctx, before); err != nil {
			return fmt.Errorf("未有効化ユーザーの削除に失敗: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	for _, l := range j.limiters {
		result.Limiters += l.Cleanup(j.opts.LimiterIdle)
	}

	metrics.CleanupRemoved.WithLabelValues("activation_codes").Add(float64(result.ExpiredCodes + result.InactiveCodes))
	metrics.CleanupRemoved.WithLabelValues("inactive_users").Add(float64(result.InactiveUsers))
	metrics.CleanupRemoved.WithLabelValues("rate_limiters").Add(float64(result.Limiters))
	return result, nil
}

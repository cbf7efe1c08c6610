package janitor

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/internal/db/dbtest"
	"go.uber.org/zap"
)

// fakeSweeper は呼び出された期間を記録し、固定の件数を返す。
type fakeSweeper struct {
	idle    time.Duration
	removed int
}

func (s *fakeSweeper) Cleanup(idle time.Duration) int {
	s.idle = idle
	return s.removed
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createInactiveUser は指定日時に作成された未有効化ユーザーとコードを作成する。
func createInactiveUser(t *testing.T, q *db.Queries, username string, createdAt, codeExpiresAt time.Time) string {
	t.Helper()

	ctx := context.Background()
	id := uuid.New().String()
	if err := q.CreateUser(ctx, db.CreateUserParams{
		ID:           id,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		DisplayName:  username,
		CreatedAt:    createdAt,
	}); err != nil {
		t.Fatalf("ユーザー作成に失敗: %v", err)
	}
	if err := q.UpsertActivationCode(ctx, db.UpsertActivationCodeParams{
		UserID:    id,
		Code:      "123456",
		ExpiresAt: codeExpiresAt,
		SentAt:    createdAt,
	}); err != nil {
		t.Fatalf("コード作成に失敗: %v", err)
	}
	return id
}

func TestRunOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := db.NewStore(dbtest.New(t))
	active := dbtest.CreateUser(t, store.Queries, "active")
	stale := createInactiveUser(t, store.Queries, "stale", now.Add(-48*time.Hour), now.Add(-47*time.Hour))
	fresh := createInactiveUser(t, store.Queries, "fresh", now.Add(-time.Hour), now.Add(-time.Minute))
	waiting := createInactiveUser(t, store.Queries, "waiting", now.Add(-time.Minute), now.Add(10*time.Minute))

	sweeper := &fakeSweeper{removed: 3}
	j := New(store, Options{Schedule: "@every 10m", InactiveUserTTL: 24 * time.Hour, LimiterIdle: 5 * time.Minute}, zap.NewNop(), sweeper)
	j.now = func() time.Time { return now }

	result, err := j.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() エラー: %v", err)
	}

	// stale と fresh のコードは期限切れ、stale は放置期間を過ぎている
	if result.ExpiredCodes != 2 || result.InactiveUsers != 1 || result.Limiters != 3 {
		t.Errorf("result = %+v", result)
	}
	if sweeper.idle != 5*time.Minute {
		t.Errorf("idle = %v, want 5m", sweeper.idle)
	}

	if _, err := store.GetUserByID(ctx, stale); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("放置された未有効化ユーザーが残っている: %v", err)
	}
	for _, id := range []string{fresh, waiting, active.ID} {
		if _, err := store.GetUserByID(ctx, id); err != nil {
			t.Errorf("ユーザー %s が削除された: %v", id, err)
		}
	}
	if _, err := store.GetActivationCode(ctx, fresh); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("期限切れのコードが残っている: %v", err)
	}
	if _, err := store.GetActivationCode(ctx, waiting); err != nil {
		t.Errorf("有効なコードが削除された: %v", err)
	}

	again, err := j.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() エラー: %v", err)
	}
	if again.ExpiredCodes != 0 || again.InactiveUsers != 0 {
		t.Errorf("2回目の result = %+v, want 削除なし", again)
	}
}

func TestStart(t *testing.T) {
	t.Parallel()

	t.Run("不正なスケジュールはエラーになること", func(t *testing.T) {
		t.Parallel()

		j := New(db.NewStore(dbtest.New(t)), Options{Schedule: "every ten minutes"}, zap.NewNop())
		if err := j.Start(context.Background()); err == nil {
			t.Error("エラーが返されなかった")
		}
	})

	t.Run("起動時に1回実行されること", func(t *testing.T) {
		t.Parallel()

		sweeper := &fakeSweeper{}
		j := New(db.NewStore(dbtest.New(t)), Options{Schedule: "@every 1h", LimiterIdle: time.Minute}, zap.NewNop(), sweeper)
		if err := j.Start(context.Background()); err != nil {
			t.Fatalf("Start() エラー: %v", err)
		}
		t.Cleanup(func() { j.Stop(context.Background()) })

		if sweeper.idle != time.Minute {
			t.Errorf("起動時のクリーンアップが実行されていない")
		}
	})
}

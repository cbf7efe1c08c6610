package notification

import (
	"context"
	"sync"
	"testing"

	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/internal/db/dbtest"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/event"
	"go.uber.org/zap"
)

// recordingPusher は配信した通知を記録するテスト用Pusher。
type recordingPusher struct {
	mu   sync.Mutex
	sent map[string][]any
}

func (p *recordingPusher) Send(userID string, v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = make(map[string][]any)
	}
	p.sent[userID] = append(p.sent[userID], v)
}

func (p *recordingPusher) count(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent[userID])
}

type serviceEnv struct {
	service *Service
	store   *db.Store
	pusher  *recordingPusher
	alice   db.User
	bob     db.User
}

func setupTestService(t *testing.T) *serviceEnv {
	t.Helper()

	store := db.NewStore(dbtest.New(t))
	pusher := &recordingPusher{}
	return &serviceEnv{
		service: NewService(store, pusher, 200, zap.NewNop()),
		store:   store,
		pusher:  pusher,
		alice:   dbtest.CreateUser(t, store.Queries, "alice"),
		bob:     dbtest.CreateUser(t, store.Queries, "bob"),
	}
}

// TestCreate は通知作成の検証と配信を確認する。
func TestCreate(t *testing.T) {
	t.Parallel()

	t.Run("作成した通知が受信者に配信されること", func(t *testing.T) {
		t.Parallel()

		env := setupTestService(t)
		view, err := env.service.Create(context.Background(), CreateInput{
			RecipientID: env.alice.ID, ActorID: env.bob.ID, Type: TypeLikePost, PostID: "p1",
		})
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if view == nil || view.Actor.Username != "bob" || view.Message != "bobさんがあなたの投稿にいいねしました" {
			t.Errorf("view = %+v", view)
		}
		if view.RelativeTime != "たった今" {
			t.Errorf("relative_time = %q", view.RelativeTime)
		}
		if got := env.pusher.count(env.alice.ID); got != 1 {
			t.Errorf("配信数 = %d, want 1", got)
		}
	})

	t.Run("自分への通知は作成されないこと", func(t *testing.T) {
		t.Parallel()

		env := setupTestService(t)
		view, err := env.service.Create(context.Background(), CreateInput{
			RecipientID: env.alice.ID, ActorID: env.alice.ID, Type: TypeFollow,
		})
		if err != nil || view != nil {
			t.Errorf("Create() = %v, %v, want nil, nil", view, err)
		}
		if n, _ := env.store.CountNotifications(context.Background(), env.alice.ID, false); n != 0 {
			t.Errorf("通知数 = %d, want 0", n)
		}
	})

	invalid := []struct {
		name string
		in   CreateInput
	}{
		{name: "不明な種類", in: CreateInput{RecipientID: "r", ActorID: "a", Type: "mention"}},
		{name: "受信者なし", in: CreateInput{ActorID: "a", Type: TypeFollow}},
		{name: "行為者なし", in: CreateInput{RecipientID: "r", Type: TypeFollow}},
		{name: "like_postにpost_idなし", in: CreateInput{RecipientID: "r", ActorID: "a", Type: TypeLikePost}},
		{name: "like_postにcomment_id", in: CreateInput{RecipientID: "r", ActorID: "a", Type: TypeLikePost, PostID: "p", CommentID: "c"}},
		{name: "commentにcomment_idなし", in: CreateInput{RecipientID: "r", ActorID: "a", Type: TypeComment, PostID: "p"}},
		{name: "replyにpost_idなし", in: CreateInput{RecipientID: "r", ActorID: "a", Type: TypeReply, CommentID: "c"}},
		{name: "followにpost_id", in: CreateInput{RecipientID: "r", ActorID: "a", Type: TypeFollow, PostID: "p"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name+"はバリデーションエラーになること", func(t *testing.T) {
			t.Parallel()

			env := setupTestService(t)
			_, err := env.service.Create(context.Background(), tt.in)
			if !apperror.Is(err, apperror.KindValidation) {
				t.Errorf("err = %v, want バリデーションエラー", err)
			}
		})
	}
}

// TestSubscribe はイベントから通知が作成、削除されることを検証する。
func TestSubscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("いいねの取り消しで未読の通知が消えること", func(t *testing.T) {
		t.Parallel()

		env := setupTestService(t)
		bus := event.NewBus(zap.NewNop())
		env.service.Subscribe(bus)

		liked := event.New(event.TypePostLiked, env.bob.ID, env.alice.ID, event.WithPost("p1"))
		if err := bus.Publish(ctx, liked); err != nil {
			t.Fatalf("Publish() エラー: %v", err)
		}
		if n, _ := env.store.CountNotifications(ctx, env.alice.ID, true); n != 1 {
			t.Fatalf("未読数 = %d, want 1", n)
		}

		unliked := event.New(event.TypePostUnliked, env.bob.ID, env.alice.ID, event.WithPost("p1"))
		if err := bus.Publish(ctx, unliked); err != nil {
			t.Fatalf("Publish() エラー: %v", err)
		}
		if n, _ := env.store.CountNotifications(ctx, env.alice.ID, false); n != 0 {
			t.Errorf("通知数 = %d, want 0", n)
		}
	})

	t.Run("既読の通知は取り消しで消えないこと", func(t *testing.T) {
		t.Parallel()

		env := setupTestService(t)
		bus := event.NewBus(zap.NewNop())
		env.service.Subscribe(bus)

		_ = bus.Publish(ctx, event.New(event.TypeUserFollowed, env.bob.ID, env.alice.ID))
		if _, err := env.service.MarkAllRead(ctx, env.alice.ID); err != nil {
			t.Fatalf("MarkAllRead() エラー: %v", err)
		}
		_ = bus.Publish(ctx, event.New(event.TypeUserUnfollowed, env.bob.ID, env.alice.ID))

		if n, _ := env.store.CountNotifications(ctx, env.alice.ID, false); n != 1 {
			t.Errorf("通知数 = %d, want 1", n)
		}
	})

	t.Run("各イベントが対応する種類の通知になること", func(t *testing.T) {
		t.Parallel()

		env := setupTestService(t)
		bus := event.NewBus(zap.NewNop())
		env.service.Subscribe(bus)

		events := []event.Event{
			event.New(event.TypeCommentCreated, env.bob.ID, env.alice.ID, event.WithPost("p1"), event.WithComment("c1")),
			event.New(event.TypeReplyCreated, env.bob.ID, env.alice.ID, event.WithPost("p1"), event.WithComment("c1")),
			event.New(event.TypeCommentLiked, env.bob.ID, env.alice.ID, event.WithPost("p1"), event.WithComment("c2")),
			event.New(event.TypeUserFollowed, env.bob.ID, env.alice.ID),
		}
		for _, e := range events {
			if err := bus.Publish(ctx, e); err != nil {
				t.Fatalf("Publish(%s) エラー: %v", e.Type, err)
			}
		}

		result, err := env.service.List(ctx, env.alice.ID, false, pageOf(10))
		if err != nil {
			t.Fatalf("List() エラー: %v", err)
		}
		types := make(map[string]View)
		for _, v := range result.Items {
			types[v.Type] = v
		}
		for _, want := range []string{TypeComment, TypeReply, TypeLikeComment, TypeFollow} {
			if _, ok := types[want]; !ok {
				t.Errorf("%s の通知がない: %v", want, result.Items)
			}
		}
		if v := types[TypeFollow]; v.PostID != "" || v.CommentID != "" {
			t.Errorf("follow の通知に関連IDがある: %+v", v)
		}
		if v := types[TypeLikeComment]; v.PostID != "p1" || v.CommentID != "c2" {
			t.Errorf("like_comment の通知 = %+v", v)
		}
	})
}

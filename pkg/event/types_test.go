package event

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestNew はNew関数でイベントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("必須フィールドが設定されること", func(t *testing.T) {
		t.Parallel()

		before := time.Now().UTC()
		e := New(TypeUserFollowed, "alice", "bob")

		if _, err := uuid.Parse(e.ID); err != nil {
			t.Errorf("IDがUUID形式ではない: %q", e.ID)
		}
		if e.Type != TypeUserFollowed {
			t.Errorf("Type = %q, want %q", e.Type, TypeUserFollowed)
		}
		if e.ActorID != "alice" || e.RecipientID != "bob" {
			t.Errorf("ActorID, RecipientID = %q, %q", e.ActorID, e.RecipientID)
		}
		if e.CreatedAt.Before(before) {
			t.Errorf("CreatedAt = %v, want >= %v", e.CreatedAt, before)
		}
		if e.PostID != "" || e.CommentID != "" {
			t.Error("オプション未指定なのにPostIDまたはCommentIDが設定されている")
		}
	})

	t.Run("オプションで投稿とコメントを設定できること", func(t *testing.T) {
		t.Parallel()

		e := New(TypeReplyCreated, "alice", "bob", WithPost("p1"), WithComment("c1"))
		if e.PostID != "p1" {
			t.Errorf("PostID = %q, want %q", e.PostID, "p1")
		}
		if e.CommentID != "c1" {
			t.Errorf("CommentID = %q, want %q", e.CommentID, "c1")
		}
	})

	t.Run("イベントごとに異なるIDが生成されること", func(t *testing.T) {
		t.Parallel()

		a := New(TypePostLiked, "alice", "bob")
		b := New(TypePostLiked, "alice", "bob")
		if a.ID == b.ID {
			t.Error("同じIDが生成された")
		}
	})
}

package notification

import (
	"database/sql"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/blog/internal/db"
)

var baseNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

// row はテスト用の通知の行を生成する。agoはbaseNowからの経過時間。
func row(id, typ, actor, postID, commentID string, ago time.Duration, read bool) db.NotificationRow {
	n := db.NotificationRow{
		Notification: db.Notification{
			ID:          id,
			RecipientID: "me",
			ActorID:     actor,
			Type:        typ,
			IsRead:      read,
			CreatedAt:   baseNow.Add(-ago),
		},
		Actor: db.Author{ID: actor, Username: actor},
	}
	if postID != "" {
		n.PostID = sql.NullString{String: postID, Valid: true}
	}
	if commentID != "" {
		n.CommentID = sql.NullString{String: commentID, Valid: true}
	}
	return n
}

// TestAggregate は通知の集約規則を検証する。
func TestAggregate(t *testing.T) {
	t.Parallel()

	t.Run("同じ投稿へのいいねがまとまること", func(t *testing.T) {
		t.Parallel()

		groups := Aggregate([]db.NotificationRow{
			row("n1", TypeLikePost, "alice", "p1", "", 5*time.Minute, true),
			row("n2", TypeLikePost, "bob", "p1", "", 3*time.Minute, false),
			row("n3", TypeLikePost, "carol", "p2", "", 10*time.Minute, true),
		}, baseNow)

		if len(groups) != 2 {
			t.Fatalf("グループ数 = %d, want 2", len(groups))
		}
		g := groups[0]
		if g.Key != "like_post:p1" || g.PostID != "p1" {
			t.Errorf("key = %q, post_id = %q", g.Key, g.PostID)
		}
		if g.Count != 2 || g.ActorCount != 2 {
			t.Errorf("count = %d, actor_count = %d, want 2, 2", g.Count, g.ActorCount)
		}
		if g.IsRead {
			t.Error("未読を含むグループがis_read = trueになっている")
		}
		if !groups[1].IsRead {
			t.Error("すべて既読のグループがis_read = falseになっている")
		}
		if g.Actors[0].Username != "bob" || g.Actors[1].Username != "alice" {
			t.Errorf("actors = %v, want 最近の順に bob, alice", g.Actors)
		}
		if g.Message != "bobさんとaliceさんがあなたの投稿にいいねしました" {
			t.Errorf("message = %q", g.Message)
		}
		if g.RelativeTime != "3分前" || g.LatestAt != "2026-01-10T11:57:00Z" {
			t.Errorf("relative_time = %q, latest_at = %q", g.RelativeTime, g.LatestAt)
		}
		if !slices.Equal(g.NotificationIDs, []string{"n2", "n1"}) {
			t.Errorf("notification_ids = %v", g.NotificationIDs)
		}
	})

	t.Run("行為者は重複を除いて最大3人まで保持されること", func(t *testing.T) {
		t.Parallel()

		groups := Aggregate([]db.NotificationRow{
			row("n1", TypeFollow, "a", "", "", 1*time.Minute, false),
			row("n2", TypeFollow, "b", "", "", 2*time.Minute, false),
			row("n3", TypeFollow, "a", "", "", 3*time.Minute, false),
			row("n4", TypeFollow, "c", "", "", 4*time.Minute, false),
			row("n5", TypeFollow, "d", "", "", 5*time.Minute, false),
		}, baseNow)

		if len(groups) != 1 {
			t.Fatalf("グループ数 = %d, want 1", len(groups))
		}
		g := groups[0]
		if g.Key != "follow" || g.Count != 5 || g.ActorCount != 4 || len(g.Actors) != 3 {
			t.Errorf("key = %q, count = %d, actor_count = %d, actors = %d", g.Key, g.Count, g.ActorCount, len(g.Actors))
		}
		if g.Message != "aさん他3人があなたをフォローしました" {
			t.Errorf("message = %q", g.Message)
		}
	})

	t.Run("コメントへのいいねと返信はコメント単位でまとまること", func(t *testing.T) {
		t.Parallel()

		groups := Aggregate([]db.NotificationRow{
			row("n1", TypeLikeComment, "a", "p1", "c1", time.Minute, false),
			row("n2", TypeLikeComment, "b", "p1", "c2", time.Minute, false),
			row("n3", TypeReply, "c", "p1", "c1", time.Minute, false),
			row("n4", TypeComment, "d", "p1", "c3", time.Minute, false),
			row("n5", TypeComment, "e", "p1", "c4", time.Minute, false),
		}, baseNow)

		keys := make([]string, 0, len(groups))
		for _, g := range groups {
			keys = append(keys, g.Key)
		}
		want := []string{"comment:p1", "like_comment:c1", "like_comment:c2", "reply:c1"}
		if !slices.Equal(keys, want) {
			t.Errorf("keys = %v, want %v（同時刻はキー順）", keys, want)
		}
		if groups[0].Count != 2 || groups[0].CommentID != "" || groups[0].PostID != "p1" {
			t.Errorf("comment グループ = %+v", groups[0])
		}
		if groups[3].CommentID != "c1" || groups[3].Message != "cさんがあなたのコメントに返信しました" {
			t.Errorf("reply グループ = %+v", groups[3])
		}
	})

	t.Run("表示名があれば表示名を使うこと", func(t *testing.T) {
		t.Parallel()

		n := row("n1", TypeFollow, "alice", "", "", time.Hour, false)
		n.Actor.DisplayName = "アリス"
		groups := Aggregate([]db.NotificationRow{n}, baseNow)
		if groups[0].Message != "アリスさんがあなたをフォローしました" {
			t.Errorf("message = %q", groups[0].Message)
		}
	})

	t.Run("空の入力は空の結果になること", func(t *testing.T) {
		t.Parallel()

		if groups := Aggregate(nil, baseNow); len(groups) != 0 {
			t.Errorf("グループ数 = %d, want 0", len(groups))
		}
	})
}

// TestRelativeTime は経過時間の表示を検証する。
func TestRelativeTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ago  time.Duration
		want string
	}{
		{name: "未来", ago: -time.Hour, want: "たった今"},
		{name: "59秒前", ago: 59 * time.Second, want: "たった今"},
		{name: "1分前", ago: time.Minute, want: "1分前"},
		{name: "59分前", ago: 59*time.Minute + 59*time.Second, want: "59分前"},
		{name: "1時間前", ago: time.Hour, want: "1時間前"},
		{name: "23時間前", ago: 23*time.Hour + 59*time.Minute, want: "23時間前"},
		{name: "1日前", ago: 24 * time.Hour, want: "1日前"},
		{name: "6日前", ago: 6*24*time.Hour + 23*time.Hour, want: "6日前"},
		{name: "7日前は日付", ago: 7 * 24 * time.Hour, want: "2026/01/03"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := RelativeTime(baseNow.Add(-tt.ago), baseNow); got != tt.want {
				t.Errorf("RelativeTime() = %q, want %q", got, tt.want)
			}
		})
	}
}

package notification

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/internal/dto"
)

// maxGroupActors はグループに含める行為者の最大数。
const maxGroupActors = 3

// Group は同じ対象への通知をまとめた集約ビュー。
type Group struct {
	// Key はグループを識別するキー。
	Key       string `json:"key"`
	Type      string `json:"type"`
	PostID    string `json:"post_id,omitempty"`
	CommentID string `json:"comment_id,omitempty"`
	// Actors は最近の行為者から最大3人。
	Actors []dto.Author `json:"actors"`
	// ActorCount は重複を除いた行為者数。
	ActorCount int `json:"actor_count"`
	// Count はまとめた通知の件数。
	Count int `json:"count"`
	// IsRead はすべての通知が既読の場合だけtrue。
	IsRead          bool     `json:"is_read"`
	LatestAt        string   `json:"latest_at"`
	NotificationIDs []string `json:"notification_ids"`
	RelativeTime    string   `json:"relative_time"`
	Message         string   `json:"message"`

	latest   time.Time
	actorSet map[string]struct{}
	names    []string
}

// groupKey は通知の種類に応じたグループキーを返す。
func groupKey(n db.NotificationRow) string {
	switch n.Type {
	case TypeLikePost, TypeComment:
		return n.Type + ":" + n.PostID.String
	case TypeLikeComment, TypeReply:
		return n.Type + ":" + n.CommentID.String
	default:
		return n.Type
	}
}

// Aggregate は通知をグループにまとめ、最新の通知が新しい順に並べて返す。
// 同時刻のグループはキー順に並ぶ。
func Aggregate(list []db.NotificationRow, now time.Time) []Group {
	sorted := slices.Clone(list)
	slices.SortStableFunc(sorted, func(a, b db.NotificationRow) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	index := make(map[string]int)
	var groups []Group
	for _, n := range sorted {
		key := groupKey(n)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			g := Group{
				Key:      key,
				Type:     n.Type,
				IsRead:   true,
				latest:   n.CreatedAt,
				actorSet: make(map[string]struct{}),
			}
			if n.Type == TypeLikePost || n.Type == TypeComment {
				g.PostID = n.PostID.String
			}
			if n.Type == TypeLikeComment || n.Type == TypeReply {
				g.CommentID = n.CommentID.String
			}
			groups = append(groups, g)
		}

		g := &groups[i]
		g.Count++
		g.NotificationIDs = append(g.NotificationIDs, n.ID)
		if !n.IsRead {
			g.IsRead = false
		}
		if _, seen := g.actorSet[n.ActorID]; !seen {
			g.actorSet[n.ActorID] = struct{}{}
			g.ActorCount++
			if len(g.Actors) < maxGroupActors {
				g.Actors = append(g.Actors, dto.ToAuthor(n.Actor))
				g.names = append(g.names, dto.DisplayName(n.Actor))
			}
		}
	}

	for i := range groups {
		g := &groups[i]
		g.LatestAt = dto.FormatTime(g.latest)
		g.RelativeTime = RelativeTime(g.latest, now)
		g.Message = groupMessage(g.names, g.ActorCount, g.Type)
	}

	slices.SortStableFunc(groups, func(a, b Group) int {
		if c := b.latest.Compare(a.latest); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return groups
}

// groupMessage は行為者の名前と人数からメッセージを組み立てる。
func groupMessage(names []string, actorCount int, notificationType string) string {
	verb := verbs[notificationType]
	switch {
	case len(names) == 0:
		return verb
	case actorCount == 1:
		return fmt.Sprintf("%sさんが%s", names[0], verb)
	case actorCount == 2 && len(names) >= 2:
		return fmt.Sprintf("%sさんと%sさんが%s", names[0], names[1], verb)
	default:
		return fmt.Sprintf("%sさん他%d人が%s", names[0], actorCount-1, verb)
	}
}

// RelativeTime はnowから見たtの経過時間を表示用の文字列にする。
// 1分未満と未来の時刻は「たった今」、7日以上前は日付を返す。
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "たった今"
	case d < time.Hour:
		return fmt.Sprintf("%d分前", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d時間前", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%d日前", int(d/(24*time.Hour)))
	default:
		return t.UTC().Format("2006/01/02")
	}
}

package notification

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/internal/dto"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/event"
	"github.com/nao1215/blog/pkg/metrics"
	"github.com/nao1215/blog/pkg/pagination"
	"go.uber.org/zap"
)

// Pusher は作成した通知を受信者の接続に届ける。
type Pusher interface {
	Send(userID string, v any)
}

// Subscriber はイベントの購読を受け付ける。
type Subscriber interface {
	Subscribe(eventType event.Type, handler event.Handler)
}

// Service は通知のビジネスロジックを実行する。
type Service struct {
	store       *db.Store
	pusher      Pusher
	logger      *zap.Logger
	groupWindow int
	now         func() time.Time
}

// NewService は新しいServiceを生成する。
// groupWindowは集約ビューで読み込む最新の通知数。
func NewService(store *db.Store, pusher Pusher, groupWindow int, logger *zap.Logger) *Service {
	return &Service{
		store:       store,
		pusher:      pusher,
		logger:      logger,
		groupWindow: groupWindow,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// View は通知のJSONレスポンス構造。
type View struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Actor        dto.Author `json:"actor"`
	PostID       string     `json:"post_id,omitempty"`
	CommentID    string     `json:"comment_id,omitempty"`
	IsRead       bool       `json:"is_read"`
	Message      string     `json:"message"`
	RelativeTime string     `json:"relative_time"`
	CreatedAt    string     `json:"created_at"`
}

func toView(n db.NotificationRow, now time.Time) View {
	return View{
		ID:           n.ID,
		Type:         n.Type,
		Actor:        dto.ToAuthor(n.Actor),
		PostID:       n.PostID.String,
		CommentID:    n.CommentID.String,
		IsRead:       n.IsRead,
		Message:      groupMessage([]string{dto.DisplayName(n.Actor)}, 1, n.Type),
		RelativeTime: RelativeTime(n.CreatedAt, now),
		CreatedAt:    dto.FormatTime(n.CreatedAt),
	}
}

// Create は通知を作成し、受信者の接続に配信する。
// 行為者と受信者が同じ場合は何もせずnilを返す。
func (s *Service) Create(ctx context.Context, in CreateInput) (*View, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.ActorID == in.RecipientID {
		return nil, nil
	}

	id := uuid.New().String()
	if err := s.store.CreateNotification(ctx, db.CreateNotificationParams{
		ID:          id,
		RecipientID: in.RecipientID,
		ActorID:     in.ActorID,
		Type:        in.Type,
		PostID:      db.NullString(in.PostID),
		CommentID:   db.NullString(in.CommentID),
		CreatedAt:   s.now(),
	}); err != nil {
		return nil, apperror.Internal("通知の作成に失敗しました", err)
	}
	metrics.NotificationsCreated.WithLabelValues(in.Type).Inc()

	row, err := s.store.GetNotificationRow(ctx, id)
	if err != nil {
		return nil, apperror.Internal("通知の取得に失敗しました", err)
	}
	view := toView(row, s.now())
	s.pusher.Send(in.RecipientID, view)
	return &view, nil
}

// Remove は条件に一致する未読の通知を削除する。既読の通知は残す。
func (s *Service) Remove(ctx context.Context, in CreateInput) error {
	removed, err := s.store.DeleteUnreadNotification(ctx, db.DeleteUnreadNotificationParams{
		RecipientID: in.RecipientID,
		ActorID:     in.ActorID,
		Type:        in.Type,
		PostID:      in.PostID,
		CommentID:   in.CommentID,
	})
	if err != nil {
		return apperror.Internal("通知の削除に失敗しました", err)
	}
	if removed > 0 {
		s.logger.Debug("取り消された操作の通知を削除", zap.String("type", in.Type), zap.Int64("removed", removed))
	}
	return nil
}

// Subscribe はイベントと通知の作成、削除を対応付けて購読する。
func (s *Service) Subscribe(bus Subscriber) {
	create := func(notificationType string) event.Handler {
		return func(ctx context.Context, e event.Event) error {
			_, err := s.Create(ctx, inputFromEvent(notificationType, e))
			return err
		}
	}
	remove := func(notificationType string) event.Handler {
		return func(ctx context.Context, e event.Event) error {
			return s.Remove(ctx, inputFromEvent(notificationType, e))
		}
	}

	bus.Subscribe(event.TypePostLiked, create(TypeLikePost))
	bus.Subscribe(event.TypePostUnliked, remove(TypeLikePost))
	bus.Subscribe(event.TypeCommentCreated, create(TypeComment))
	bus.Subscribe(event.TypeReplyCreated, create(TypeReply))
	bus.Subscribe(event.TypeCommentLiked, create(TypeLikeComment))
	bus.Subscribe(event.TypeCommentUnliked, remove(TypeLikeComment))
	bus.Subscribe(event.TypeUserFollowed, create(TypeFollow))
	bus.Subscribe(event.TypeUserUnfollowed, remove(TypeFollow))
}

func inputFromEvent(notificationType string, e event.Event) CreateInput {
	in := CreateInput{
		RecipientID: e.RecipientID,
		ActorID:     e.ActorID,
		Type:        notificationType,
	}
	if notificationType != TypeFollow {
		in.PostID = e.PostID
	}
	if notificationType != TypeFollow && notificationType != TypeLikePost {
		in.CommentID = e.CommentID
	}
	return in
}

// List は受信者の通知を新しい順に返す。
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, page pagination.Page) (pagination.Result[View], error) {
	rows, err := s.store.ListNotificationRows(ctx, db.ListNotificationsParams{
		RecipientID: userID,
		UnreadOnly:  unreadOnly,
		Limit:       page.Limit,
		Offset:      page.Skip,
	})
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("通知一覧の取得に失敗しました", err)
	}
	total, err := s.store.CountNotifications(ctx, userID, unreadOnly)
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("通知一覧の取得に失敗しました", err)
	}

	now := s.now()
	views := make([]View, 0, len(rows))
	for _, r := range rows {
		views = append(views, toView(r, now))
	}
	return pagination.NewResult(page, views, total), nil
}

// Grouped は最新の通知を集約し、グループをページ単位で返す。
func (s *Service) Grouped(ctx context.Context, userID string, page pagination.Page) (pagination.Result[Group], error) {
	rows, err := s.store.ListNotificationRows(ctx, db.ListNotificationsParams{
		RecipientID: userID,
		Limit:       s.groupWindow,
	})
	if err != nil {
		return pagination.Result[Group]{}, apperror.Internal("通知一覧の取得に失敗しました", err)
	}

	groups := Aggregate(rows, s.now())
	total := int64(len(groups))
	start := min(page.Skip, len(groups))
	end := min(start+page.Limit, len(groups))
	return pagination.NewResult(page, groups[start:end], total), nil
}

// UnreadCount は未読の通知数を返す。
func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := s.store.CountNotifications(ctx, userID, true)
	if err != nil {
		return 0, apperror.Internal("未読数の取得に失敗しました", err)
	}
	return count, nil
}

// MarkRead は通知を既読にする。
func (s *Service) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.ensureRecipient(ctx, id, userID); err != nil {
		return err
	}
	if err := s.store.MarkNotificationRead(ctx, id); err != nil {
		return apperror.Internal("通知の更新に失敗しました", err)
	}
	return nil
}

// MarkAllRead は受信者の未読通知をすべて既読にし、更新数を返す。
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	updated, err := s.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, apperror.Internal("通知の更新に失敗しました", err)
	}
	return updated, nil
}

// MarkReadByIDs は指定した通知を既読にする。他のユーザー宛てのIDは無視する。
func (s *Service) MarkReadByIDs(ctx context.Context, userID string, ids []string) (int64, error) {
	updated, err := s.store.MarkNotificationsReadByIDs(ctx, userID, ids)
	if err != nil {
		return 0, apperror.Internal("通知の更新に失敗しました", err)
	}
	return updated, nil
}

// Delete は通知を削除する。
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if err := s.ensureRecipient(ctx, id, userID); err != nil {
		return err
	}
	if err := s.store.DeleteNotification(ctx, id); err != nil {
		return apperror.Internal("通知の削除に失敗しました", err)
	}
	return nil
}

// ensureRecipient は通知が存在し、userID宛てであることを確認する。
func (s *Service) ensureRecipient(ctx context.Context, id, userID string) error {
	n, err := s.store.GetNotification(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("通知が見つかりません")
	}
	if err != nil {
		return apperror.Internal("通知の取得に失敗しました", err)
	}
	if n.RecipientID != userID {
		return apperror.Forbidden("この通知へのアクセス権がありません")
	}
	return nil
}

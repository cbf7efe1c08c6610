// Package event はアプリケーション内のドメインイベントと同期型イベントバスを提供する。
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypePostLiked は投稿にいいねされたことを表す。
	TypePostLiked Type = "PostLiked"
	// TypePostUnliked は投稿のいいねが取り消されたことを表す。
	TypePostUnliked Type = "PostUnliked"
	// TypeCommentCreated は投稿にトップレベルコメントが付いたことを表す。
	TypeCommentCreated Type = "CommentCreated"
	// TypeReplyCreated はコメントに返信が付いたことを表す。
	TypeReplyCreated Type = "ReplyCreated"
	// TypeCommentLiked はコメントにいいねされたことを表す。
	TypeCommentLiked Type = "CommentLiked"
	// TypeCommentUnliked はコメントのいいねが取り消されたことを表す。
	TypeCommentUnliked Type = "CommentUnliked"
	// TypeUserFollowed はユーザーがフォローされたことを表す。
	TypeUserFollowed Type = "UserFollowed"
	// TypeUserUnfollowed はフォローが解除されたことを表す。
	TypeUserUnfollowed Type = "UserUnfollowed"
)

// Event は発生したドメインイベントを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// Type はイベントの種類。
	Type Type `json:"type"`
	// ActorID は操作を行ったユーザーのID。
	ActorID string `json:"actor_id"`
	// RecipientID は操作の影響を受けるユーザーのID。
	RecipientID string `json:"recipient_id"`
	// PostID は関連する投稿のID。
	PostID string `json:"post_id,omitempty"`
	// CommentID は関連するコメントのID。
	CommentID string `json:"comment_id,omitempty"`
	// CreatedAt はイベントが発生した日時。
	CreatedAt time.Time `json:"created_at"`
}

// Option はイベント生成時の追加属性を設定する関数。
type Option func(*Event)

// WithPost は関連する投稿IDを設定する。
func WithPost(postID string) Option {
	return func(e *Event) { e.PostID = postID }
}

// WithComment は関連するコメントIDを設定する。
func WithComment(commentID string) Option {
	return func(e *Event) { e.CommentID = commentID }
}

// New は新しいイベントを生成する。
func New(eventType Type, actorID, recipientID string, opts ...Option) Event {
	e := Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		ActorID:     actorID,
		RecipientID: recipientID,
		CreatedAt:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Package notification は通知の作成、一覧、集約、既読管理とリアルタイム配信を提供する。
// 通知はイベントバスに流れた操作イベントから作成し、取り消し系のイベントで未読の通知を取り除く。
package notification

import (
	"fmt"

	"github.com/nao1215/blog/pkg/apperror"
)

// 通知の種類。
const (
	TypeLikePost    = "like_post"
	TypeComment     = "comment"
	TypeReply       = "reply"
	TypeLikeComment = "like_comment"
	TypeFollow      = "follow"
)

// verbs は通知の種類ごとのメッセージ述部。
var verbs = map[string]string{
	TypeLikePost:    "あなたの投稿にいいねしました",
	TypeComment:     "あなたの投稿にコメントしました",
	TypeReply:       "あなたのコメントに返信しました",
	TypeLikeComment: "あなたのコメントにいいねしました",
	TypeFollow:      "あなたをフォローしました",
}

// CreateInput は通知作成の入力。
type CreateInput struct {
	RecipientID string
	ActorID     string
	Type        string
	PostID      string
	CommentID   string
}

// validate は種類ごとに必要な関連IDが揃っているかを検証する。
func (in CreateInput) validate() error {
	if in.RecipientID == "" || in.ActorID == "" {
		return apperror.Validation("通知の受信者と行為者は必須です")
	}

	var needPost, needComment bool
	switch in.Type {
	case TypeLikePost:
		needPost = true
	case TypeComment, TypeReply, TypeLikeComment:
		needPost, needComment = true, true
	case TypeFollow:
	default:
		return apperror.Validation(fmt.Sprintf("不明な通知の種類です: %q", in.Type))
	}

	if needPost != (in.PostID != "") {
		if needPost {
			return apperror.Validation(fmt.Sprintf("%s の通知には post_id が必要です", in.Type))
		}
		return apperror.Validation(fmt.Sprintf("%s の通知に post_id は指定できません", in.Type))
	}
	if needComment != (in.CommentID != "") {
		if needComment {
			return apperror.Validation(fmt.Sprintf("%s の通知には comment_id が必要です", in.Type))
		}
		return apperror.Validation(fmt.Sprintf("%s の通知に comment_id は指定できません", in.Type))
	}
	return nil
}

// Package dto はAPIレスポンスで共通に使うJSON構造と変換関数を提供する。
package dto

import (
	"database/sql"
	"time"

	"github.com/nao1215/blog/internal/db"
)

// TimeFormat はレスポンスの日時形式。
const TimeFormat = "2006-01-02T15:04:05Z"

// FormatTime は日時をUTCのレスポンス形式に変換する。
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ImageURL は画像IDから配信URLを返す。IDが無い場合は空文字列を返す。
func ImageURL(id sql.NullString) string {
	if !id.Valid || id.String == "" {
		return ""
	}
	return "/api/v1/images/" + id.String
}

// Author は一覧や詳細に埋め込むユーザー概要。
type Author struct {
	// ID はユーザーID。
	ID string `json:"id"`
	// Username はユーザー名。
	Username string `json:"username"`
	// DisplayName は表示名。
	DisplayName string `json:"display_name"`
	// AvatarURL はアバター画像のURL。
	AvatarURL string `json:"avatar_url"`
}

// ToAuthor はDBのユーザー概要をレスポンスに変換する。
func ToAuthor(a db.Author) Author {
	return Author{
		ID:          a.ID,
		Username:    a.Username,
		DisplayName: a.DisplayName,
		AvatarURL:   ImageURL(a.AvatarImageID),
	}
}

// User は公開用のユーザー情報。
type User struct {
	// ID はユーザーID。
	ID string `json:"id"`
	// Username はユーザー名。
	Username string `json:"username"`
	// DisplayName は表示名。
	DisplayName string `json:"display_name"`
	// Bio は自己紹介。
	Bio string `json:"bio"`
	// AvatarURL はアバター画像のURL。
	AvatarURL string `json:"avatar_url"`
	// CreatedAt は登録日時。
	CreatedAt string `json:"created_at"`
}

// ToUser はDBのユーザーを公開用レスポンスに変換する。
func ToUser(u db.User) User {
	return User{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Bio:         u.Bio,
		AvatarURL:   ImageURL(u.AvatarImageID),
		CreatedAt:   FormatTime(u.CreatedAt),
	}
}

// ToUsers はDBのユーザー一覧を公開用レスポンスに変換する。
func ToUsers(users []db.User) []User {
	items := make([]User, 0, len(users))
	for _, u := range users {
		items = append(items, ToUser(u))
	}
	return items
}

// Me は本人にだけ返すユーザー情報。
type Me struct {
	User
	// Email はメールアドレス。
	Email string `json:"email"`
	// IsActive はアカウントが有効化済みかどうか。
	IsActive bool `json:"is_active"`
}

// ToMe はDBのユーザーを本人向けレスポンスに変換する。
func ToMe(u db.User) Me {
	return Me{
		User:     ToUser(u),
		Email:    u.Email,
		IsActive: u.IsActive,
	}
}

// DisplayName は表示名が空の場合にユーザー名を返す。
func DisplayName(a db.Author) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

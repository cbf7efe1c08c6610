package db

import (
	"database/sql"
	"time"
)

// User はusersテーブルの行。
type User struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  string
	DisplayName   string
	Bio           string
	AvatarImageID sql.NullString
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ActivationCode はactivation_codesテーブルの行。
type ActivationCode struct {
	UserID     string
	Code       string
	Attempts   int64
	ExpiresAt  time.Time
	LastSentAt time.Time
	CreatedAt  time.Time
}

// Post はpostsテーブルの行。
type Post struct {
	ID           string
	AuthorID     string
	Title        string
	Content      string
	CoverImageID sql.NullString
	ViewCount    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Tag はtagsテーブルの行。
type Tag struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Comment はcommentsテーブルの行。
type Comment struct {
	ID        string
	PostID    string
	AuthorID  string
	ParentID  sql.NullString
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Image はimagesテーブルの行。
type Image struct {
	ID          string
	OwnerID     string
	Filename    string
	ContentType string
	Size        int64
	StoragePath string
	CreatedAt   time.Time
}

// Notification はnotificationsテーブルの行。
type Notification struct {
	ID          string
	RecipientID string
	ActorID     string
	Type        string
	PostID      sql.NullString
	CommentID   sql.NullString
	IsRead      bool
	CreatedAt   time.Time
}

// Author は一覧表示用のユーザー概要。
type Author struct {
	ID            string
	Username      string
	DisplayName   string
	AvatarImageID sql.NullString
}

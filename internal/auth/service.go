// Package auth はユーザー登録、メールアドレス確認、ログインを提供する。
package auth

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/metrics"
	"github.com/nao1215/blog/pkg/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// usernamePattern はユーザー名に使える文字と長さ。
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

// maxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
const maxPasswordBytes = 72

var (
	errCodeExpired      = apperror.Validation("確認コードの有効期限が切れています。コードを再送してください")
	errAttemptsExceeded = apperror.Validation("確認コードの試行回数を超えました。コードを再送してください")
)

// Options は認証サービスの設定。
type Options struct {
	// JWTSecret はアクセストークンの署名鍵。
	JWTSecret string
	// JWTTTL はアクセストークンの有効期間。
	JWTTTL time.Duration
	// CodeTTL は確認コードの有効期間。
	CodeTTL time.Duration
	// MaxAttempts は1つのコードで許可する誤入力回数。
	MaxAttempts int
	// ResendInterval はコード再送の最小間隔。
	ResendInterval time.Duration
	// BcryptCost はパスワードハッシュのコスト。0の場合はbcrypt.DefaultCost。
	BcryptCost int
}

// Service は認証のビジネスロジックを実行する。
type Service struct {
	store   *db.Store
	mailer  Mailer
	logger  *zap.Logger
	opts    Options
	now     func() time.Time
	newCode func() (string, error)
}

// NewService は新しいServiceを生成する。
func NewService(store *db.Store, mailer Mailer, logger *zap.Logger, opts Options) *Service {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		store:   store,
		mailer:  mailer,
		logger:  logger,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
		newCode: NewActivationCode,
	}
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// TokenResult はログイン成功時の結果。
type TokenResult struct {
	Token     string
	ExpiresAt time.Time
	User      db.User
}

// Register は未有効化のユーザーを作成し、確認コードをメールで送信する。
// メール送信の失敗はログに記録し、登録自体は成功として扱う。
func (s *Service) Register(ctx context.Context, in RegisterInput) (db.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if !usernamePattern.MatchString(username) {
		return db.User{}, apperror.Validation("ユーザー名は3〜30文字の英数字とアンダースコアで指定してください")
	}
	if len(in.Password) < 8 || len(in.Password) > maxPasswordBytes {
		return db.User{}, apperror.Validation("パスワードは8〜72バイトで指定してください")
	}

	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return db.User{}, apperror.Conflict("このユーザー名は既に使われています")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return db.User{}, apperror.Internal("ユーザーの確認に失敗しました", err)
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return db.User{}, apperror.Conflict("このメールアドレスは既に登録されています")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return db.User{}, apperror.Internal("ユーザーの確認に失敗しました", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.BcryptCost)
	if err != nil {
		return db.User{}, apperror.Internal("パスワードの処理に失敗しました", err)
	}
	code, err := s.newCode()
	if err != nil {
		return db.User{}, apperror.Internal("確認コードの生成に失敗しました", err)
	}

	now := s.now()
	userID := uuid.New().String()
	err = s.store.ExecTx(ctx, func(q *db.Queries) error {
		if err := q.CreateUser(ctx, db.CreateUserParams{
			ID:           userID,
			Username:     username,
			Email:        email,
			PasswordHash: string(hash),
			DisplayName:  strings.TrimSpace(in.DisplayName),
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		return q.UpsertActivationCode(ctx, db.UpsertActivationCodeParams{
			UserID:    userID,
			Code:      code,
			ExpiresAt: now.Add(s.opts.CodeTTL),
			SentAt:    now,
		})
	})
	if db.IsUniqueViolation(err) {
		return db.User{}, apperror.Conflict("このユーザー名またはメールアドレスは既に使われています")
	}
	if err != nil {
		return db.User{}, apperror.Internal("ユーザー登録に失敗しました", err)
	}

	if err := s.sendCode(ctx, email, code); err != nil {
		s.logger.Warn("確認コードの送信に失敗", zap.String("user_id", userID), zap.Error(err))
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return db.User{}, apperror.Internal("ユーザーの取得に失敗しました", err)
	}
	return user, nil
}

// Activate は確認コードを検証してアカウントを有効化し、アクセストークンを発行する。
func (s *Service) Activate(ctx context.Context, email, code string) (TokenResult, error) {
	user, err := s.inactiveUserByEmail(ctx, email)
	if err != nil {
		return TokenResult{}, err
	}

	now := s.now()
	ac, err := s.store.GetActivationCode(ctx, user.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return TokenResult{}, apperror.Internal("確認コードの取得に失敗しました", err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return TokenResult{}, errCodeExpired
	}
	// 試行回数超過で無効化したコードは再送するまで超過として扱う
	if ac.Attempts >= int64(s.opts.MaxAttempts) {
		if ac.Code == "" {
			return TokenResult{}, errAttemptsExceeded
		}
		return TokenResult{}, s.exhaust(ctx, user.ID, now)
	}
	if ac.Code == "" || !now.Before(ac.ExpiresAt) {
		return TokenResult{}, errCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(ac.Code), []byte(strings.TrimSpace(code))) != 1 {
		attempts, err := s.store.IncrementActivationAttempts(ctx, user.ID)
		if err != nil {
			return TokenResult{}, apperror.Internal("確認コードの更新に失敗しました", err)
		}
		remaining := int64(s.opts.MaxAttempts) - attempts
		if remaining <= 0 {
			return TokenResult{}, s.exhaust(ctx, user.ID, now)
		}
		return TokenResult{}, apperror.Validation(fmt.Sprintf("確認コードが正しくありません（残り%d回）", remaining))
	}

	if err := s.store.ExecTx(ctx, func(q *db.Queries) error {
		if err := q.ActivateUser(ctx, user.ID, now); err != nil {
			return err
		}
		return q.DeleteActivationCode(ctx, user.ID)
	}); err != nil {
		return TokenResult{}, apperror.Internal("アカウントの有効化に失敗しました", err)
	}

	user.IsActive = true
	user.UpdatedAt = now
	return s.issueToken(user)
}

// exhaust はコードを無効化して試行回数超過のエラーを返す。
func (s *Service) exhaust(ctx context.Context, userID string, now time.Time) error {
	if err := s.store.InvalidateActivationCode(ctx, userID, now); err != nil {
		return apperror.Internal("確認コードの無効化に失敗しました", err)
	}
	return errAttemptsExceeded
}

// Resend は新しい確認コードを発行して送信する。
// 前回の送信から再送間隔が経過していない場合は429のエラーを返す。
func (s *Service) Resend(ctx context.Context, email string) error {
	user, err := s.inactiveUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	now := s.now()
	ac, err := s.store.GetActivationCode(ctx, user.ID)
	switch {
	case err == nil:
		if wait := ac.LastSentAt.Add(s.opts.ResendInterval).Sub(now); wait > 0 {
			return apperror.TooManyRequests(fmt.Sprintf("再送まで%d秒お待ちください", int(math.Ceil(wait.Seconds()))))
		}
	case !errors.Is(err, sql.ErrNoRows):
		return apperror.Internal("確認コードの取得に失敗しました", err)
	}

	code, err := s.newCode()
	if err != nil {
		return apperror.Internal("確認コードの生成に失敗しました", err)
	}
	if err := s.store.UpsertActivationCode(ctx, db.UpsertActivationCodeParams{
		UserID:    user.ID,
		Code:      code,
		ExpiresAt: now.Add(s.opts.CodeTTL),
		SentAt:    now,
	}); err != nil {
		return apperror.Internal("確認コードの保存に失敗しました", err)
	}

	if err := s.sendCode(ctx, user.Email, code); err != nil {
		return apperror.Internal("確認コードの送信に失敗しました", err)
	}
	return nil
}

// Login はユーザー名またはメールアドレスとパスワードで認証し、アクセストークンを発行する。
func (s *Service) Login(ctx context.Context, login, password string) (TokenResult, error) {
	errCredentials := apperror.Unauthorized("ユーザー名またはパスワードが正しくありません")

	user, err := s.store.GetUserByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, sql.ErrNoRows) {
		return TokenResult{}, errCredentials
	}
	if err != nil {
		return TokenResult{}, apperror.Internal("ユーザーの取得に失敗しました", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return TokenResult{}, errCredentials
	}
	if !user.IsActive {
		return TokenResult{}, apperror.Forbidden("アカウントが有効化されていません。メールの確認コードで有効化してください")
	}
	return s.issueToken(user)
}

// Me は認証済みユーザーの情報を返す。
func (s *Service) Me(ctx context.Context, userID string) (db.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return db.User{}, apperror.NotFound("ユーザーが見つかりません")
	}
	if err != nil {
		return db.User{}, apperror.Internal("ユーザーの取得に失敗しました", err)
	}
	return user, nil
}

// inactiveUserByEmail はメールアドレスで未有効化のユーザーを取得する。
func (s *Service) inactiveUserByEmail(ctx context.Context, email string) (db.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return db.User{}, apperror.NotFound("ユーザーが見つかりません")
	}
	if err != nil {
		return db.User{}, apperror.Internal("ユーザーの取得に失敗しました", err)
	}
	if user.IsActive {
		return db.User{}, apperror.Conflict("アカウントは既に有効化されています")
	}
	return user, nil
}

// sendCode は確認コードをメールで送信する。
func (s *Service) sendCode(ctx context.Context, email, code string) error {
	if err := s.mailer.Send(ctx, activationMessage(email, code, int(s.opts.CodeTTL.Minutes()))); err != nil {
		return err
	}
	metrics.ActivationCodesSent.Inc()
	return nil
}

// issueToken はユーザーのアクセストークンを発行する。
func (s *Service) issueToken(user db.User) (TokenResult, error) {
	token, expiresAt, err := middleware.GenerateJWT(s.opts.JWTSecret, user.ID, user.Username, s.opts.JWTTTL)
	if err != nil {
		return TokenResult{}, apperror.Internal("トークンの発行に失敗しました", err)
	}
	return TokenResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Package apperror はサービス層からHTTP層へ伝播するアプリケーションエラーを提供する。
//
// サービスは種別（Kind）とユーザー向けメッセージを持つ *Error を返し、
// ハンドラは Respond でHTTPステータスとJSONレスポンスに変換する。
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Kind はエラーの種別を表す。
type Kind int

const (
	// KindInternal はサーバー内部のエラーを表す。
	KindInternal Kind = iota
	// KindValidation は入力値の検証エラーを表す。
	KindValidation
	// KindUnauthorized は認証エラーを表す。
	KindUnauthorized
	// KindForbidden は権限エラーを表す。
	KindForbidden
	// KindNotFound はリソースが存在しないことを表す。
	KindNotFound
	// KindConflict は一意制約や状態の競合を表す。
	KindConflict
	// KindTooManyRequests は試行回数や送信間隔の制限を表す。
	KindTooManyRequests
)

// Error はアプリケーションエラー。
type Error struct {
	// Kind はエラーの種別。
	Kind Kind
	// Message はクライアントに返すメッセージ。
	Message string
	// Err は原因となったエラー。
	Err error
}

// Error はエラーメッセージを返す。
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap は原因となったエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode はエラー種別に対応するHTTPステータスコードを返す。
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Validation は入力値の検証エラーを生成する。
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Unauthorized は認証エラーを生成する。
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// Forbidden は権限エラーを生成する。
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NotFound はリソース未検出エラーを生成する。
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict は競合エラーを生成する。
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// TooManyRequests は制限超過エラーを生成する。
func TooManyRequests(message string) *Error {
	return &Error{Kind: KindTooManyRequests, Message: message}
}

// Internal は内部エラーを生成する。errは原因としてログに記録される。
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// Is はerrが指定した種別のアプリケーションエラーかどうかを返す。
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// Respond はエラーをJSONレスポンスとして書き出す。
// 内部エラーは原因と共にログに記録し、クライアントにはメッセージのみを返す。
func Respond(c *gin.Context, logger *zap.Logger, err error) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = Internal("内部サーバーエラーが発生しました", err)
	}

	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		logger.Error(appErr.Message,
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(appErr.Err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": appErr.Message})
}

// BadRequest はリクエストのバインドエラーを400として書き出す。
func BadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
}

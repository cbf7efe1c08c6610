// Package middleware はブログAPIのGinミドルウェアを提供する。
//
// アクセストークンの検証（AuthGuard）、構造化リクエストログ、パニックリカバリ、
// CORS、認証エンドポイント向けのレート制限を含む。
package middleware

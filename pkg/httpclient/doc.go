// Package httpclient は外部APIとJSONで通信するHTTPクライアントを提供する。
//
// メール配信APIの呼び出しなど、外部サービスへのリクエストの
// ヘッダー設定とエラー処理を統一する。
package httpclient

package auth

import (
	"context"
	"fmt"

	"github.com/nao1215/blog/pkg/httpclient"
	"go.uber.org/zap"
)

// Message は送信するメール。
type Message struct {
	// To は宛先アドレス。
	To string
	// Subject は件名。
	Subject string
	// Text はプレーンテキストの本文。
	Text string
}

// Mailer はメールを送信するインターフェース。
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// HTTPMailer はHTTPのメール配信APIでメールを送信する。
type HTTPMailer struct {
	client *httpclient.Client
	from   string
}

// NewHTTPMailer は新しいHTTPMailerを生成する。
func NewHTTPMailer(baseURL, apiKey, from string) *HTTPMailer {
	return &HTTPMailer{
		client: httpclient.New(baseURL, httpclient.WithBearerToken(apiKey)),
		from:   from,
	}
}

// mailRequest はメール配信APIのリクエストボディ。
type mailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Send はメール配信APIの /v1/messages にメールを送信する。
func (m *HTTPMailer) Send(ctx context.Context, msg Message) error {
	if err := m.client.PostJSON(ctx, "/v1/messages", mailRequest{
		From:    m.from,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
	}, nil); err != nil {
		return fmt.Errorf("メール送信に失敗: %w", err)
	}
	return nil
}

// LogMailer はメールを送信せずログに出力する。開発環境向け。
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer は新しいLogMailerを生成する。
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send はメールの内容をログに出力する。
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("メール送信（ログ出力のみ）",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text),
	)
	return nil
}

// activationMessage はアクティベーションコードのメールを組み立てる。
func activationMessage(to, code string, ttlMinutes int) Message {
	return Message{
		To:      to,
		Subject: "アカウント確認コード",
		Text:    fmt.Sprintf("確認コード: %s\nこのコードは%d分間有効です。", code, ttlMinutes),
	}
}

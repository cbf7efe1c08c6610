package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Handler はイベントを処理する関数。
type Handler func(ctx context.Context, e Event) error

// Publisher はイベントを発行するインターフェース。
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus はプロセス内の同期型イベントバス。
// 購読者は登録順に呼び出し元のゴルーチンで実行される。
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	logger   *zap.Logger
}

// NewBus は新しいBusを生成する。
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[Type][]Handler),
		logger:   logger,
	}
}

// Subscribe は指定した種類のイベントの購読者を登録する。
func (b *Bus) Subscribe(eventType Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish はイベントを購読者へ配送する。
// 購読者のエラーはログに記録し、すべての購読者を呼び出した後にまとめて返す。
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[e.Type]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			b.logger.Error("イベント処理に失敗",
				zap.String("event_id", e.ID),
				zap.String("event_type", string(e.Type)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s の処理に失敗: %w", e.Type, err))
		}
	}
	return errors.Join(errs...)
}

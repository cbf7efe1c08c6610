package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// TestNew はロガー生成を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("JSON形式のロガーを生成できること", func(t *testing.T) {
		t.Parallel()

		l, err := New("warn", "json")
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if l.Core().Enabled(zapcore.InfoLevel) {
			t.Error("warnレベルでinfoが有効になっている")
		}
		if !l.Core().Enabled(zapcore.ErrorLevel) {
			t.Error("warnレベルでerrorが無効になっている")
		}
	})

	t.Run("console形式のロガーを生成できること", func(t *testing.T) {
		t.Parallel()

		if _, err := New("debug", "console"); err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
	})

	t.Run("不正なレベルはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New("verbose", "json"); err == nil {
			t.Error("不正なレベルでエラーにならない")
		}
	})

	t.Run("不正な形式はエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New("info", "xml"); err == nil {
			t.Error("不正な形式でエラーにならない")
		}
	})
}

package service

import (
	"context"

	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

// Notifier — канал к оператору. Единственный, всё важное уходит сюда.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Controls — то, чем оператор управляет через команды. Подвязывается
// после сборки графа, когда монитор и супервизор уже существуют.
type Controls interface {
	StatusText() string
	PositionsText() string
	CloseAll(ctx context.Context, reason string) int
	CancelOrder(ctx context.Context, clientID string) error
	ResetBreaker() bool
	Pause()
	Resume()
	Paused() bool
}

// Stdout — фолбэк без токена: всё в лог, команды недоступны.
type Stdout struct{}

func NewStdout() *Stdout                           { return &Stdout{} }
func (s *Stdout) Send(msg string)                  { logger.Info("[NOTIFY] %s", msg) }
func (s *Stdout) Sendf(format string, args ...any) { logger.Info("[NOTIFY] "+format, args...) }

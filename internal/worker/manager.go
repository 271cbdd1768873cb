package worker

import (
	"context"
	"fmt"

	"codepilot/internal/logger"
	"codepilot/internal/service/metering"
)

// ChatHandler runs one metered chat call.
type ChatHandler interface {
	Handle(ctx context.Context, userID string, req metering.ChatRequest) (*metering.Result, error)
}

// Manager serializes chat calls per user on the dispatcher.
type Manager struct {
	dispatcher *Dispatcher
	chat       ChatHandler
}

func NewManager(chat ChatHandler, cfg DispatcherConfig) *Manager {
	return &Manager{
		dispatcher: NewDispatcher(cfg),
		chat:       chat,
	}
}

// Chat queues req behind the user's earlier calls and waits for the result.
// It never returns a nil result together with a nil error.
func (m *Manager) Chat(ctx context.Context, userID string, req metering.ChatRequest) (*metering.Result, error) {
	var (
		res *metering.Result
		err error
	)
	if derr := m.dispatcher.Do(ctx, userID, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorWithFields("chat handler panicked", logger.Fields{
					"user_id": userID,
					"panic":   fmt.Sprint(r),
				})
				res, err = nil, fmt.Errorf("%w: chat handler panicked", metering.ErrInternal)
			}
		}()
		res, err = m.chat.Handle(ctx, userID, req)
	}); derr != nil {
		return nil, derr
	}
	if res == nil && err == nil {
		// Do skips fn once ctx has ended.
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, metering.ErrInternal
	}
	return res, err
}

// Workers reports the number of live workers.
func (m *Manager) Workers() int {
	return m.dispatcher.Workers()
}

func (m *Manager) Close() {
	m.dispatcher.Close()
}

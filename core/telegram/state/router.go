package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m3rciful/esimbot/core/logger"
	tele "gopkg.in/telebot.v4"
)

// Reader reports the current FSM state of a user.
type Reader interface {
	CurrentState(ctx context.Context, userID int64) (State, error)
}

// Router dispatches free-text messages to the handler bound to the sender's
// current state. States without a handler are not considered "in progress",
// so their text falls through to the regular message routing.
type Router struct {
	reader   Reader
	mu       sync.RWMutex
	handlers map[State]tele.HandlerFunc
}

// NewRouter builds a Router backed by reader.
func NewRouter(reader Reader) *Router {
	return &Router{reader: reader, handlers: make(map[State]tele.HandlerFunc)}
}

// Handle binds h to st. Registering twice for the same state replaces the handler.
func (r *Router) Handle(st State, h tele.HandlerFunc) {
	if h == nil || st == "" || st == StateIdle {
		return
	}
	r.mu.Lock()
	r.handlers[st] = h
	r.mu.Unlock()
	logger.TWire.Debug("state handler registered",
		slog.String("event", "register.state"),
		slog.String("state", string(st)),
	)
}

func (r *Router) lookup(c tele.Context) (State, tele.HandlerFunc) {
	if c == nil || c.Sender() == nil || r.reader == nil {
		return StateIdle, nil
	}
	st, err := r.reader.CurrentState(context.Background(), c.Sender().ID)
	if err != nil {
		logger.Session.Warn("state lookup failed",
			slog.String("event", "state.lookup"),
			slog.Int64("user_id", c.Sender().ID),
			slog.String("err", err.Error()),
		)
		return StateIdle, nil
	}
	r.mu.RLock()
	h := r.handlers[st]
	r.mu.RUnlock()
	return st, h
}

// InProgress reports whether the sender is in a state that accepts text input.
func (r *Router) InProgress(c tele.Context) bool {
	_, h := r.lookup(c)
	return h != nil
}

// ManagerHandler invokes the handler bound to the sender's current state.
func (r *Router) ManagerHandler(c tele.Context) error {
	_, h := r.lookup(c)
	if h == nil {
		return nil
	}
	return h(c)
}

package purchase

import (
	"context"

	"github.com/m3rciful/esimbot/core/telegram/state"
	"github.com/m3rciful/esimbot/internal/esim"
)

// Workflow states. SelectingRegion is implicit: it is the idle state.
const (
	StateSelectingCountry   state.State = "selecting_country"
	StateSelectingPackage   state.State = "selecting_package"
	StateConfirmingPurchase state.State = "confirming_purchase"
	StatePaymentProcessing  state.State = "payment_processing"
)

// Context is the per-user data accumulated during one purchase run.
// Packages is kept exactly as fetched so button indices stay valid.
type Context struct {
	Region          string         `json:"region,omitempty"`
	CountryName     string         `json:"country_name,omitempty"`
	CountryCode     string         `json:"country_code,omitempty"`
	Packages        []esim.Package `json:"packages,omitempty"`
	SelectedPackage *esim.Package  `json:"selected_package,omitempty"`
	OrderNo         string         `json:"order_no,omitempty"`
}

// Field overwrites one part of a Context.
type Field func(*Context)

// WithRegion sets the region key used for "back to countries".
func WithRegion(key string) Field { return func(c *Context) { c.Region = key } }

// WithCountry sets the chosen country and its location code.
func WithCountry(name, code string) Field {
	return func(c *Context) {
		c.CountryName = name
		c.CountryCode = code
	}
}

// WithPackages replaces the fetched package sequence.
func WithPackages(pkgs []esim.Package) Field {
	return func(c *Context) { c.Packages = pkgs }
}

// WithSelectedPackage stores a copy of the chosen package; nil clears it.
func WithSelectedPackage(p *esim.Package) Field {
	return func(c *Context) {
		if p == nil {
			c.SelectedPackage = nil
			return
		}
		cp := *p
		c.SelectedPackage = &cp
	}
}

// WithOrderNo sets the placed order number.
func WithOrderNo(orderNo string) Field { return func(c *Context) { c.OrderNo = orderNo } }

// Store keeps one Context per user on top of a session manager.
type Store struct {
	sessions state.Manager[Context]
}

// NewStore wraps a session manager.
func NewStore(m state.Manager[Context]) *Store {
	return &Store{sessions: m}
}

// Get returns the user's current state and context.
func (s *Store) Get(ctx context.Context, userID int64) (state.State, Context, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return state.StateIdle, Context{}, err
	}
	return sess.State, sess.Data, nil
}

// Set merges fields into the stored context; fields not supplied are kept.
func (s *Store) Set(ctx context.Context, userID int64, fields ...Field) error {
	return s.sessions.Update(ctx, userID, func(sess *state.Session[Context]) {
		for _, f := range fields {
			f(&sess.Data)
		}
	})
}

// Transition moves to st and merges fields in one write.
func (s *Store) Transition(ctx context.Context, userID int64, st state.State, fields ...Field) error {
	return s.sessions.Update(ctx, userID, func(sess *state.Session[Context]) {
		sess.State = st
		for _, f := range fields {
			f(&sess.Data)
		}
	})
}

// Clear drops the context and returns the user to the idle state.
func (s *Store) Clear(ctx context.Context, userID int64) error {
	return s.sessions.Clear(ctx, userID)
}

// Lock serializes transitions of one user.
func (s *Store) Lock(userID int64) func() {
	return s.sessions.Lock(userID)
}

// CurrentState satisfies state.Reader for the text router.
func (s *Store) CurrentState(ctx context.Context, userID int64) (state.State, error) {
	return s.sessions.CurrentState(ctx, userID)
}

// Ping reports session backend health.
func (s *Store) Ping(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

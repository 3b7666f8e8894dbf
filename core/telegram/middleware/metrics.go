package middleware

import (
	tele "gopkg.in/telebot.v4"
)

const countersKey = "out_counters"

// counters tracks what a handler sent back for the handler summary line.
type counters struct {
	messages int
	media    int
	kb       bool
}

// countingContext proxies outbound calls of tele.Context and records them.
type countingContext struct {
	tele.Context
	n *counters
}

func (c countingContext) record(what any, opts []any, err error) error {
	if err != nil {
		return err
	}
	c.n.messages++
	if _, ok := what.(tele.Inputtable); ok {
		c.n.media++
	}
	if hasKeyboard(opts) {
		c.n.kb = true
	}
	return nil
}

func hasKeyboard(opts []any) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

func (c countingContext) Send(what any, opts ...any) error {
	return c.record(what, opts, c.Context.Send(what, opts...))
}

func (c countingContext) Reply(what any, opts ...any) error {
	return c.record(what, opts, c.Context.Reply(what, opts...))
}

func (c countingContext) Edit(what any, opts ...any) error {
	return c.record(what, opts, c.Context.Edit(what, opts...))
}

func (c countingContext) EditOrSend(what any, opts ...any) error {
	return c.record(what, opts, c.Context.EditOrSend(what, opts...))
}

func (c countingContext) EditOrReply(what any, opts ...any) error {
	return c.record(what, opts, c.Context.EditOrReply(what, opts...))
}

// MessageMetricsMiddleware counts messages, media and keyboards sent while handling an update.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		n := &counters{}
		c.Set(countersKey, n)
		return next(countingContext{Context: c, n: n})
	}
}

// GetCounters reads message count and keyboard presence for the current update.
func GetCounters(c tele.Context) (messages int, kb bool) {
	if n, ok := c.Get(countersKey).(*counters); ok && n != nil {
		return n.messages, n.kb
	}
	return 0, false
}

// GetMediaCount reports how many of the sent messages carried a photo or other media.
func GetMediaCount(c tele.Context) int {
	if n, ok := c.Get(countersKey).(*counters); ok && n != nil {
		return n.media
	}
	return 0
}

package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/esimbot/core/telegram"
	"github.com/m3rciful/esimbot/core/telegram/callbacks"
	"github.com/m3rciful/esimbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
	// SelfAnswered lists callback keys whose handlers answer the query
	// themselves, e.g. with an alert. Every other callback is acknowledged
	// before its handler runs so slow handlers do not leave a spinner.
	SelfAnswered []string
}

// CallbackRoute returns a handler that routes callbacks through the registry.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	selfAnswered := make(map[string]struct{}, len(opts.SelfAnswered))
	for _, k := range opts.SelfAnswered {
		selfAnswered[k] = struct{}{}
	}

	handler := func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}

		key, _ := callbacks.Parse(c.Callback())
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		if _, ok := selfAnswered[key]; !ok {
			_ = c.Respond()
		}

		cbHandler, ok := reg.GetCallback(key)
		if !ok || cbHandler == nil {
			fallback := reg.CallbackNotFound()
			if fallback == nil {
				fallback = opts.NotFound
			}
			extras = append(extras, slog.String("reason", "not_found"))
			return handleWithSummary(c, name, start, "skip", "", func() error {
				if fallback != nil {
					return fallback(c)
				}
				return nil
			}, extras...)
		}

		return handleWithSummary(c, name, start, "", "", func() error {
			return cbHandler(c)
		}, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}

// Package ui declares presentation hooks the core routers call into.
package ui

import tele "gopkg.in/telebot.v4"

// FallbackProvider answers updates that match no command, callback or
// conversation state: stray text, documents and stale inline buttons.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}

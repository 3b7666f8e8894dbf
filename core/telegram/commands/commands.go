// Package commands describes slash commands registered in the bot registry.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are wrapped with the admin check.
	AdminOnly bool
	// Hidden commands are not published in the Telegram command menu.
	Hidden  bool
	Aliases []string
}

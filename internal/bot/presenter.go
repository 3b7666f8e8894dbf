package bot

import (
	"bytes"
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/esimbot/core/logger"
	tghelpers "github.com/m3rciful/esimbot/core/telegram/helpers"
	"github.com/m3rciful/esimbot/internal/purchase"

	tele "gopkg.in/telebot.v4"
)

// messenger is the part of the Bot API the presenter needs.
type messenger interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

type callFunc func(action, endpoint string, fn func() error) error

func directCall(_, _ string, fn func() error) error { return fn() }

var errKindMismatch = errors.New("bot: message kind changed")

// presenter delivers screens into one chat. It edits the message it last
// delivered (initially the message behind the callback) and degrades through
// delete-and-resend to a plain text message when editing is impossible.
type presenter struct {
	r    *renderer
	m    messenger
	call callFunc
	chat tele.Recipient

	target   *tele.Message
	hasPhoto bool
}

func newPresenter(c tele.Context, r *renderer) *presenter {
	p := &presenter{
		r:    r,
		m:    c.Bot(),
		chat: c.Recipient(),
		call: func(action, endpoint string, fn func() error) error {
			return tghelpers.Call(c, action, endpoint, fn)
		},
	}
	if cb := c.Callback(); cb != nil && cb.Message != nil {
		p.target = cb.Message
		p.hasPhoto = cb.Message.Photo != nil
	}
	return p
}

// Show implements purchase.Presenter.
func (p *presenter) Show(ctx context.Context, v purchase.View) error {
	msg, err := p.r.view(v)
	if err != nil {
		return err
	}
	return p.deliver(ctx, msg)
}

func (p *presenter) deliver(ctx context.Context, msg message) error {
	err := p.edit(msg)
	if err == nil {
		p.sendQR(ctx, msg)
		return nil
	}
	if p.target != nil && !errors.Is(err, errKindMismatch) {
		p.logFallback(ctx, "edit", err)
	}

	if err = p.resend(msg); err == nil {
		p.sendQR(ctx, msg)
		return nil
	}
	p.logFallback(ctx, "resend", err)

	if err = p.plain(msg); err != nil {
		return err
	}
	p.sendQR(ctx, msg)
	return nil
}

func (p *presenter) options(msg message) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             tele.ModeMarkdown,
		ReplyMarkup:           msg.Markup,
		DisableWebPagePreview: !msg.Preview,
	}
}

func (p *presenter) edit(msg message) error {
	if p.target == nil {
		return errKindMismatch
	}
	wantPhoto := msg.Image != ""
	if wantPhoto != p.hasPhoto {
		return errKindMismatch
	}
	var what interface{} = msg.Text
	endpoint := "editMessageText"
	if wantPhoto {
		what = &tele.Photo{File: tele.FromDisk(msg.Image), Caption: msg.Text}
		endpoint = "editMessageMedia"
	}
	return p.call("edit", endpoint, func() error {
		out, err := p.m.Edit(p.target, what, p.options(msg))
		if errors.Is(err, tele.ErrSameMessageContent) {
			return nil
		}
		if err != nil {
			return err
		}
		p.remember(out, wantPhoto)
		return nil
	})
}

func (p *presenter) resend(msg message) error {
	if p.target != nil {
		old := p.target
		_ = p.call("delete", "deleteMessage", func() error { return p.m.Delete(old) })
		p.target = nil
	}
	var what interface{} = msg.Text
	endpoint := "sendMessage"
	if msg.Image != "" {
		what = &tele.Photo{File: tele.FromDisk(msg.Image), Caption: msg.Text}
		endpoint = "sendPhoto"
	}
	return p.call("resend", endpoint, func() error {
		out, err := p.m.Send(p.chat, what, p.options(msg))
		if err != nil {
			return err
		}
		p.remember(out, msg.Image != "")
		return nil
	})
}

// plain sends the text without image or formatting.
func (p *presenter) plain(msg message) error {
	return p.call("send.plain", "sendMessage", func() error {
		out, err := p.m.Send(p.chat, msg.Text, &tele.SendOptions{ReplyMarkup: msg.Markup})
		if err != nil {
			return err
		}
		p.remember(out, false)
		return nil
	})
}

// sendQR posts the QR image as a separate message. Failures are logged only;
// the activation code is already in the text.
func (p *presenter) sendQR(ctx context.Context, msg message) {
	if len(msg.QR) == 0 {
		return
	}
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(msg.QR))}
	err := p.call("send.qr", "sendPhoto", func() error {
		_, err := p.m.Send(p.chat, photo)
		return err
	})
	if err != nil {
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "tg.present",
			slog.String("status", "fail"),
			slog.String("step", "qr"),
			slog.String("err", logger.ErrAttr(err)),
		)
	}
}

func (p *presenter) remember(out *tele.Message, photo bool) {
	if out == nil {
		return
	}
	p.target = out
	p.hasPhoto = photo
}

func (p *presenter) logFallback(ctx context.Context, step string, err error) {
	logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "tg.present",
		slog.String("status", "retry"),
		slog.String("step", step),
		slog.String("err", logger.ErrAttr(err)),
	)
}

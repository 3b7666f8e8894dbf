// Package bot is the Telegram face of the eSIM shop: command and callback
// handlers, keyboards and the presenter that delivers workflow screens.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/esimbot/core/logger"
	tg "github.com/m3rciful/esimbot/core/telegram"
	"github.com/m3rciful/esimbot/core/telegram/callbacks"
	"github.com/m3rciful/esimbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/esimbot/core/telegram/helpers"
	"github.com/m3rciful/esimbot/core/telegram/state"
	"github.com/m3rciful/esimbot/core/telegram/ui"
	"github.com/m3rciful/esimbot/internal/catalog"
	"github.com/m3rciful/esimbot/internal/esim"
	"github.com/m3rciful/esimbot/internal/history"
	"github.com/m3rciful/esimbot/internal/purchase"
	"github.com/m3rciful/esimbot/internal/texts"

	tele "gopkg.in/telebot.v4"
)

const profileOrders = 10

// OrderLister reads the local order history.
type OrderLister interface {
	ListByUser(ctx context.Context, userID int64, limit int) ([]history.Order, error)
	ByOrderNo(ctx context.Context, orderNo string) (history.Order, bool, error)
}

// OrderQuerier looks up provider-side order state.
type OrderQuerier interface {
	QueryOrder(ctx context.Context, orderNo string) ([]esim.Profile, error)
}

// Deps are the collaborators of Bot. Orders may be nil.
type Deps struct {
	Workflow *purchase.Workflow
	Store    *purchase.Store
	Catalog  *catalog.Catalog
	Texts    *texts.Texts
	Orders   OrderLister
	Provider OrderQuerier
	// Assets is a directory with region images; empty disables images.
	Assets string
}

// Bot wires purchase screens and static menus into the core registry.
type Bot struct {
	wf       *purchase.Workflow
	store    *purchase.Store
	cat      *catalog.Catalog
	t        *texts.Texts
	orders   OrderLister
	provider OrderQuerier
	r        *renderer
	kb       keyboards
}

var _ ui.FallbackProvider = (*Bot)(nil)

// New builds a Bot.
func New(d Deps) *Bot {
	r := newRenderer(d.Texts, d.Catalog, d.Assets)
	return &Bot{
		wf:       d.Workflow,
		store:    d.Store,
		cat:      d.Catalog,
		t:        d.Texts,
		orders:   d.Orders,
		provider: d.Provider,
		r:        r,
		kb:       r.kb,
	}
}

// Register adds commands and callbacks to reg.
func (b *Bot) Register(reg *tg.Registry) error {
	reg.RegisterCommand("/start", commands.Command{Handler: b.onStart, Description: "Главное меню"})
	reg.RegisterCommand("/buy", commands.Command{Handler: b.onBuy, Description: "Купить eSIM"})
	reg.RegisterCommand("/profile", commands.Command{Handler: b.onProfile, Description: "Профиль и заказы"})
	reg.RegisterCommand("/cancel", commands.Command{Handler: b.onCancel, Description: "Отменить покупку"})
	reg.RegisterCommand("/order", commands.Command{
		Handler:     b.onAdminOrder,
		Description: "Статус заказа",
		AdminOnly:   true,
		Hidden:      true,
	})

	handlers := map[string]tele.HandlerFunc{
		cbBuy:              b.onBuy,
		cbRegion:           b.onRegion,
		cbCountry:          b.onCountry,
		cbPackage:          b.onPackage,
		cbConfirm:          b.workflowAction((*purchase.Workflow).Confirm),
		cbBackToPackages:   b.workflowAction((*purchase.Workflow).BackToPackages),
		cbShowDetails:      b.workflowAction((*purchase.Workflow).ShowDetails),
		cbCancel:           b.onCancel,
		cbBackToMain:       b.onStart,
		cbProfile:          b.onProfile,
		cbSetup:            b.static("setup", b.kb.backToMain),
		cbQuestions:        b.static("questions", b.kb.questions),
		cbQA:               b.onQA,
		cbFeedback:         b.onFeedback,
		cbPartner:          b.static("partner", b.kb.partner),
		cbPartnerReferral:  b.static("partner_referral", b.kb.partnerReferral),
		cbPartnerCommunity: b.static("partner_community", b.kb.partnerCommunity),
		cbShareReferral:    b.alert("share_referral_alert"),
		cbSupport:          b.alert("support_alert"),
	}
	for key, h := range handlers {
		if err := reg.RegisterCallback(key, h); err != nil {
			return err
		}
	}
	reg.SetCallbackNotFound(b.UnknownCallback())
	return nil
}

// SelfAnswered lists callbacks that answer the query with an alert.
func (b *Bot) SelfAnswered() []string {
	return []string{cbShareReferral, cbSupport}
}

// StateRouter routes free text typed while choosing a country.
func (b *Bot) StateRouter() *state.Router {
	r := state.NewRouter(b.store)
	r.Handle(purchase.StateSelectingCountry, b.onCountryText)
	return r
}

// UnknownText answers text outside any conversation.
func (b *Bot) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, b.t.Text("unknown_text"))
	}
}

// UnknownDocument answers uploaded files.
func (b *Bot) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, b.t.Text("unknown_document"))
	}
}

// UnknownCallback answers buttons with an unregistered key.
func (b *Bot) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, b.t.Text("unknown_callback"))
	}
}

// OnRateLimited tells a user their update was dropped.
func (b *Bot) OnRateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: "⏳"})
	}
	return nil
}

func userID(c tele.Context) int64 {
	if s := c.Sender(); s != nil {
		return s.ID
	}
	return 0
}

// run executes a workflow step and maps its errors onto user messages.
func (b *Bot) run(c tele.Context, step func(ctx context.Context, uid int64, out purchase.Presenter) error) error {
	ctx := tghelpers.BuildContext(c)
	uid := userID(c)
	if uid == 0 {
		return nil
	}
	err := step(ctx, uid, newPresenter(c, b.r))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, purchase.ErrStaleAction), errors.Is(err, purchase.ErrUnknownRegion):
		return tghelpers.SendText(c, b.t.Text("stale_action_alert"))
	default:
		_ = tghelpers.SendText(c, b.t.Text("error_alert"))
		return err
	}
}

func (b *Bot) workflowAction(fn func(*purchase.Workflow, context.Context, int64, purchase.Presenter) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.run(c, func(ctx context.Context, uid int64, out purchase.Presenter) error {
			return fn(b.wf, ctx, uid, out)
		})
	}
}

func (b *Bot) onBuy(c tele.Context) error {
	return b.workflowAction((*purchase.Workflow).EnterRegion)(c)
}

func (b *Bot) onCancel(c tele.Context) error {
	return b.workflowAction((*purchase.Workflow).Cancel)(c)
}

func (b *Bot) onRegion(c tele.Context) error {
	key := callbacks.Payload(c)
	return b.run(c, func(ctx context.Context, uid int64, out purchase.Presenter) error {
		return b.wf.SelectRegion(ctx, uid, out, key)
	})
}

func (b *Bot) onCountry(c tele.Context) error {
	// Codes outside the catalog pass through so the workflow reports
	// "nothing found" the same way as for typed names.
	name := callbacks.Payload(c)
	if country, _, ok := b.cat.ByCode(name); ok {
		name = country.Name
	}
	return b.run(c, func(ctx context.Context, uid int64, out purchase.Presenter) error {
		return b.wf.SelectCountry(ctx, uid, out, name)
	})
}

func (b *Bot) onCountryText(c tele.Context) error {
	name := strings.TrimSpace(c.Text())
	return b.run(c, func(ctx context.Context, uid int64, out purchase.Presenter) error {
		return b.wf.SelectCountry(ctx, uid, out, name)
	})
}

func (b *Bot) onPackage(c tele.Context) error {
	idx, err := callbacks.PayloadInt(c)
	if err != nil {
		idx = -1
	}
	return b.run(c, func(ctx context.Context, uid int64, out purchase.Presenter) error {
		return b.wf.SelectPackage(ctx, uid, out, idx)
	})
}

// onStart shows the main menu and drops any purchase in progress.
func (b *Bot) onStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if uid := userID(c); uid != 0 {
		unlock := b.store.Lock(uid)
		err := b.store.Clear(ctx, uid)
		unlock()
		if err != nil {
			return err
		}
	}
	name := ""
	if s := c.Sender(); s != nil {
		name = s.FirstName
	}
	msg, err := b.r.text("start", screenData{Name: name}, b.kb.start())
	if err != nil {
		return err
	}
	return newPresenter(c, b.r).deliver(ctx, msg)
}

type profileOrder struct {
	OrderNo     string
	CountryName string
	PackageName string
	Date        string
}

func (b *Bot) onProfile(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	uid := userID(c)
	data := struct {
		UserID int64
		Orders []profileOrder
	}{UserID: uid}

	if b.orders != nil && uid != 0 {
		list, err := b.orders.ListByUser(ctx, uid, profileOrders)
		if err != nil {
			logger.LogEvent(ctx, logger.History, slog.LevelWarn, "history.list",
				slog.String("status", "fail"),
				slog.String("err", logger.ErrAttr(err)),
			)
		}
		for _, o := range list {
			data.Orders = append(data.Orders, profileOrder{
				OrderNo:     o.OrderNo,
				CountryName: o.CountryName,
				PackageName: o.PackageName,
				Date:        o.CreatedAt.Format(time.DateOnly),
			})
		}
	}
	msg, err := b.r.text("profile", data, b.kb.backToMain())
	if err != nil {
		return err
	}
	return newPresenter(c, b.r).deliver(ctx, msg)
}

func (b *Bot) static(key string, markup func() *tele.ReplyMarkup) tele.HandlerFunc {
	return func(c tele.Context) error {
		msg, err := b.r.text(key, nil, markup())
		if err != nil {
			return err
		}
		return newPresenter(c, b.r).deliver(tghelpers.BuildContext(c), msg)
	}
}

func (b *Bot) alert(key string) tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.Alert(c, b.t.Text(key))
	}
}

func (b *Bot) onQA(c tele.Context) error {
	qa, ok := b.t.Question(callbacks.Payload(c))
	if !ok {
		return b.static("questions", b.kb.questions)(c)
	}
	msg, err := b.r.text("qa_answer", qa, b.kb.feedback())
	if err != nil {
		return err
	}
	return newPresenter(c, b.r).deliver(tghelpers.BuildContext(c), msg)
}

func (b *Bot) onFeedback(c tele.Context) error {
	if callbacks.Payload(c) == "yes" {
		return b.static("feedback_yes", b.kb.backToMain)(c)
	}
	return b.static("feedback_no", b.kb.feedbackNo)(c)
}

func (b *Bot) onAdminOrder(c tele.Context) error {
	var orderNo string
	if m := c.Message(); m != nil {
		orderNo = strings.TrimSpace(m.Payload)
	}
	if orderNo == "" || b.provider == nil {
		return tghelpers.SendText(c, b.t.Text("admin_order_usage"))
	}
	ctx := tghelpers.BuildContext(c)
	profiles, err := b.provider.QueryOrder(ctx, orderNo)
	if err != nil {
		return tghelpers.SendText(c, logger.ErrAttr(err))
	}
	var local *history.Order
	if b.orders != nil {
		o, ok, err := b.orders.ByOrderNo(ctx, orderNo)
		if err != nil {
			logger.LogEvent(ctx, logger.History, slog.LevelWarn, "history.lookup",
				slog.String("status", "fail"),
				slog.String("order_no", orderNo),
				slog.String("err", logger.ErrAttr(err)),
			)
		} else if ok {
			local = &o
		}
	}
	msg, err := b.r.text("admin_order", struct {
		OrderNo  string
		Local    *history.Order
		Profiles []esim.Profile
	}{orderNo, local, profiles}, nil)
	if err != nil {
		return err
	}
	return newPresenter(c, b.r).deliver(ctx, msg)
}

package bot

import (
	"strconv"

	"github.com/m3rciful/esimbot/core/telegram/keyboard"
	"github.com/m3rciful/esimbot/internal/catalog"
	"github.com/m3rciful/esimbot/internal/esim"
	"github.com/m3rciful/esimbot/internal/texts"

	tele "gopkg.in/telebot.v4"
)

// Callback unique keys.
const (
	cbBuy              = "buy_esim"
	cbRegion           = "region"
	cbCountry          = "country"
	cbPackage          = "package"
	cbConfirm          = "confirm_purchase"
	cbBackToPackages   = "back_to_packages"
	cbShowDetails      = "show_esim_details"
	cbCancel           = "cancel_purchase"
	cbBackToMain       = "back_to_main"
	cbProfile          = "profile"
	cbSetup            = "setup"
	cbQuestions        = "questions"
	cbQA               = "qa"
	cbFeedback         = "feedback"
	cbPartner          = "partner"
	cbPartnerReferral  = "partner_referral"
	cbPartnerCommunity = "partner_community"
	cbShareReferral    = "share_referral"
	cbSupport          = "support"
)

type keyboards struct {
	t   *texts.Texts
	cat *catalog.Catalog
}

func (k keyboards) btn(label, unique string) keyboard.InlineBtn {
	return keyboard.InlineBtn{Text: k.t.Button(label), Unique: unique}
}

func (k keyboards) backToMain() *tele.ReplyMarkup {
	return keyboard.InlineButtons(k.btn("back_to_main", cbBackToMain))
}

func (k keyboards) start() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{k.btn("buy", cbBuy), k.btn("profile", cbProfile)},
		[]keyboard.InlineBtn{k.btn("setup", cbSetup), k.btn("questions", cbQuestions)},
		[]keyboard.InlineBtn{k.btn("partner", cbPartner)},
	)
}

func (k keyboards) regions() *tele.ReplyMarkup {
	regions := k.cat.Regions()
	btns := make([]keyboard.InlineBtn, 0, len(regions)+1)
	for _, r := range regions {
		btns = append(btns, keyboard.InlineBtn{Text: r.Title, Unique: cbRegion, Data: r.Key})
	}
	btns = append(btns, k.btn("back", cbBackToMain))
	return keyboard.InlineButtons(btns...)
}

// countries carries location codes in callback data; display names can
// exceed the 64-byte callback limit.
func (k keyboards) countries(r catalog.Region) *tele.ReplyMarkup {
	btns := make([]keyboard.InlineBtn, 0, len(r.Countries))
	for _, c := range r.Countries {
		btns = append(btns, keyboard.InlineBtn{Text: c.Name, Unique: cbCountry, Data: c.Code})
	}
	rows := splitRows(btns, 2)
	rows = append(rows, []keyboard.InlineBtn{k.btn("back", cbBuy)})
	return keyboard.InlineButtonsRows(rows...)
}

func (k keyboards) backToCountries(r catalog.Region) *tele.ReplyMarkup {
	if r.Key == "" {
		return keyboard.InlineButtons(k.btn("back", cbBuy))
	}
	return keyboard.InlineButtons(keyboard.InlineBtn{
		Text:   k.t.Button("back_to_countries"),
		Unique: cbRegion,
		Data:   r.Key,
	})
}

// packages labels buttons by index into the stored sequence.
func (k keyboards) packages(pkgs []esim.Package, r catalog.Region) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(pkgs)+1)
	for i, p := range pkgs {
		rows = append(rows, []keyboard.InlineBtn{{Text: p.Label(), Unique: cbPackage, Data: strconv.Itoa(i)}})
	}
	back := k.backToCountries(r).InlineKeyboard[0][0]
	rows = append(rows, []keyboard.InlineBtn{{Text: back.Text, Unique: back.Unique, Data: back.Data}})
	return keyboard.InlineButtonsRows(rows...)
}

func (k keyboards) confirm() *tele.ReplyMarkup {
	return keyboard.InlineButtons(
		k.btn("confirm", cbConfirm),
		k.btn("back_to_packages", cbBackToPackages),
		k.btn("cancel", cbCancel),
	)
}

func (k keyboards) paymentError() *tele.ReplyMarkup {
	return keyboard.InlineButtons(
		k.btn("confirm", cbConfirm),
		k.btn("cancel", cbCancel),
	)
}

func (k keyboards) paymentDone() *tele.ReplyMarkup {
	return keyboard.InlineButtons(k.btn("show_details", cbShowDetails))
}

func (k keyboards) questions() *tele.ReplyMarkup {
	faq := k.t.FAQ()
	btns := make([]keyboard.InlineBtn, 0, len(faq)+1)
	for _, qa := range faq {
		btns = append(btns, keyboard.InlineBtn{Text: qa.Question, Unique: cbQA, Data: qa.Key})
	}
	btns = append(btns, k.btn("back", cbBackToMain))
	return keyboard.InlineButtons(btns...)
}

func (k keyboards) feedback() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: k.t.Button("feedback_yes"), Unique: cbFeedback, Data: "yes"},
			{Text: k.t.Button("feedback_no"), Unique: cbFeedback, Data: "no"},
		},
		[]keyboard.InlineBtn{k.btn("back_to_questions", cbQuestions)},
	)
}

func (k keyboards) feedbackNo() *tele.ReplyMarkup {
	return keyboard.InlineButtons(
		k.btn("faq", cbQuestions),
		k.btn("support", cbSupport),
	)
}

func (k keyboards) partner() *tele.ReplyMarkup {
	return keyboard.InlineButtons(
		k.btn("partner_referral", cbPartnerReferral),
		k.btn("partner_community", cbPartnerCommunity),
		k.btn("back", cbBackToMain),
	)
}

func (k keyboards) partnerReferral() *tele.ReplyMarkup {
	return keyboard.InlineButtons(
		k.btn("share_referral", cbShareReferral),
		k.btn("back", cbPartner),
	)
}

func (k keyboards) partnerCommunity() *tele.ReplyMarkup {
	btns := make([]keyboard.InlineBtn, 0, 2)
	if url := k.t.Link("partner_bot"); url != "" {
		btns = append(btns, keyboard.InlineBtn{Text: k.t.Button("partner_bot"), URL: url})
	}
	btns = append(btns, k.btn("back", cbPartner))
	return keyboard.InlineButtons(btns...)
}

func splitRows(btns []keyboard.InlineBtn, n int) [][]keyboard.InlineBtn {
	var rows [][]keyboard.InlineBtn
	for i := 0; i < len(btns); i += n {
		rows = append(rows, btns[i:min(i+n, len(btns))])
	}
	return rows
}

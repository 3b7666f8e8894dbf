package bot

import (
	"fmt"
	"os"
	"path/filepath"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/m3rciful/esimbot/internal/catalog"
	"github.com/m3rciful/esimbot/internal/esim"
	"github.com/m3rciful/esimbot/internal/purchase"
	"github.com/m3rciful/esimbot/internal/texts"

	tele "gopkg.in/telebot.v4"
)

const qrSize = 512

// message is a rendered screen ready for delivery.
type message struct {
	Text   string
	Markup *tele.ReplyMarkup
	// Image is a local file shown above the text when delivery allows it.
	Image string
	// QR is a PNG sent after the text.
	QR      []byte
	Preview bool
}

// screenData feeds every workflow template.
type screenData struct {
	Name           string
	Region         string
	Country        string
	Package        string
	Volume         string
	Duration       string
	Price          string
	OrderNo        string
	ICCID          string
	ActivationCode string
	QRCodeURL      string
}

type renderer struct {
	t      *texts.Texts
	kb     keyboards
	assets string
}

func newRenderer(t *texts.Texts, cat *catalog.Catalog, assets string) *renderer {
	return &renderer{t: t, kb: keyboards{t: t, cat: cat}, assets: assets}
}

func (r *renderer) text(key string, data any, markup *tele.ReplyMarkup) (message, error) {
	s, err := r.t.Render(key, data)
	if err != nil {
		return message{}, err
	}
	return message{Text: s, Markup: markup}, nil
}

// view renders a workflow screen.
func (r *renderer) view(v purchase.View) (message, error) {
	d := screenData{
		Region:  v.Region.Title,
		Country: v.Country,
		OrderNo: v.OrderNo,
	}
	if p := v.Package; p != nil {
		d.Package = p.DisplayName()
		d.Volume = esim.FormatVolume(p.Volume)
		d.Duration = esim.FormatDuration(p.Duration, p.DurationUnit)
		d.Price = esim.FormatPrice(p.Price)
	}
	if pr := v.Profile; pr != nil {
		d.ICCID = pr.ICCID
		d.ActivationCode = pr.ActivationCode
		d.QRCodeURL = pr.QRCodeURL
	}

	key := string(v.Screen)
	var markup *tele.ReplyMarkup
	switch v.Screen {
	case purchase.ScreenRegions, purchase.ScreenNothingFound:
		markup = r.kb.regions()
	case purchase.ScreenCountries:
		m, err := r.text(key, d, r.kb.countries(v.Region))
		if err != nil {
			return message{}, err
		}
		m.Image = r.regionImage(v.Region)
		return m, nil
	case purchase.ScreenNoPackages, purchase.ScreenPackageNotFound:
		markup = r.kb.backToCountries(v.Region)
	case purchase.ScreenChoosePackage:
		markup = r.kb.packages(v.Packages, v.Region)
	case purchase.ScreenConfirmPurchase:
		markup = r.kb.confirm()
	case purchase.ScreenPaymentError:
		markup = r.kb.paymentError()
	case purchase.ScreenPaymentSuccess:
		markup = r.kb.paymentDone()
	case purchase.ScreenOrderNotFound, purchase.ScreenESIMNotReady, purchase.ScreenOperationCancelled:
		markup = r.kb.backToMain()
	case purchase.ScreenESIMDetails:
		m, err := r.text(key, d, r.kb.backToMain())
		if err != nil {
			return message{}, err
		}
		m.Preview = true
		if d.ActivationCode != "" {
			png, err := qrcode.Encode(d.ActivationCode, qrcode.Medium, qrSize)
			if err != nil {
				return message{}, fmt.Errorf("bot: qr: %w", err)
			}
			m.QR = png
		}
		return m, nil
	case purchase.ScreenLoadingPackages, purchase.ScreenProcessingPayment, purchase.ScreenGettingDetails:
	default:
		return message{}, fmt.Errorf("bot: no layout for screen %q", v.Screen)
	}
	return r.text(key, d, markup)
}

// regionImage returns the region picture path when it exists on disk.
func (r *renderer) regionImage(reg catalog.Region) string {
	if r.assets == "" || reg.Image == "" {
		return ""
	}
	path := filepath.Join(r.assets, filepath.Base(reg.Image))
	if st, err := os.Stat(path); err != nil || st.IsDir() {
		return ""
	}
	return path
}

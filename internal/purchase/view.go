package purchase

import (
	"context"

	"github.com/m3rciful/esimbot/core/telegram/state"
	"github.com/m3rciful/esimbot/internal/catalog"
	"github.com/m3rciful/esimbot/internal/esim"
)

// Screen names a user-facing step of the workflow.
type Screen string

const (
	ScreenRegions            Screen = "regions"
	ScreenCountries          Screen = "countries"
	ScreenNothingFound       Screen = "nothing_found"
	ScreenLoadingPackages    Screen = "loading_packages"
	ScreenNoPackages         Screen = "no_packages"
	ScreenChoosePackage      Screen = "choose_package"
	ScreenPackageNotFound    Screen = "package_not_found"
	ScreenConfirmPurchase    Screen = "confirm_purchase"
	ScreenProcessingPayment  Screen = "processing_payment"
	ScreenPaymentError       Screen = "payment_error"
	ScreenPaymentSuccess     Screen = "payment_success"
	ScreenGettingDetails     Screen = "getting_esim_details"
	ScreenOrderNotFound      Screen = "order_not_found"
	ScreenESIMNotReady       Screen = "esim_not_ready"
	ScreenESIMDetails        Screen = "esim_details"
	ScreenOperationCancelled Screen = "operation_cancelled"
)

// View is what a transition asks the presentation layer to render.
type View struct {
	Screen Screen
	// State is the workflow state after the transition.
	State state.State

	Region   catalog.Region
	Country  string
	Packages []esim.Package
	Package  *esim.Package
	OrderNo  string
	Profile  *esim.Profile
}

// Presenter renders views for one conversation. Implementations choose how
// to deliver them (edit in place, resend, plain text).
type Presenter interface {
	Show(ctx context.Context, v View) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, v View) error

// Show calls f.
func (f PresenterFunc) Show(ctx context.Context, v View) error { return f(ctx, v) }

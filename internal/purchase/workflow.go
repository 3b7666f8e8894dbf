// Package purchase drives the eSIM purchase conversation: region, country,
// package, confirmation, order placement and activation details retrieval.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/esimbot/core/logger"
	"github.com/m3rciful/esimbot/core/telegram/state"
	"github.com/m3rciful/esimbot/internal/catalog"
	"github.com/m3rciful/esimbot/internal/esim"
	"github.com/m3rciful/esimbot/internal/history"
)

var (
	// ErrStaleAction rejects an action that does not fit the current state,
	// e.g. a button from an older message.
	ErrStaleAction = errors.New("purchase: action not valid in current state")
	// ErrUnknownRegion is returned for a region key missing from the catalog.
	ErrUnknownRegion = errors.New("purchase: unknown region")
)

const (
	defaultPollAttempts = 5
	defaultPollInterval = 2 * time.Second
)

// Provisioner is the subset of the provisioning client the workflow calls.
type Provisioner interface {
	ListPackages(ctx context.Context, locationCode string) ([]esim.Package, error)
	PlaceOrder(ctx context.Context, packageCode string, price int64, count int) (string, error)
	QueryOrder(ctx context.Context, orderNo string) ([]esim.Profile, error)
}

// Catalog resolves regions and countries.
type Catalog interface {
	Region(key string) (catalog.Region, bool)
	Lookup(name string) (catalog.Country, string, bool)
}

// Recorder receives placed orders. It must not fail the workflow.
type Recorder interface {
	Record(ctx context.Context, o history.Order)
}

// Options tunes detail polling.
type Options struct {
	PollAttempts int
	PollInterval time.Duration
	// Now stamps recorded orders; defaults to time.Now.
	Now func() time.Time
}

// Workflow is the purchase state machine. Each transition holds the user's
// lock for its whole duration, provider calls included, so actions of one
// user are applied strictly one after another.
type Workflow struct {
	store    *Store
	client   Provisioner
	catalog  Catalog
	recorder Recorder
	opts     Options
}

// New builds a Workflow.
func New(store *Store, client Provisioner, cat Catalog, rec Recorder, opts Options) *Workflow {
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = defaultPollAttempts
	}
	if opts.PollInterval < 0 {
		opts.PollInterval = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Workflow{store: store, client: client, catalog: cat, recorder: rec, opts: opts}
}

// DefaultPollInterval is the pause between detail polls used by the bot.
func DefaultPollInterval() time.Duration { return defaultPollInterval }

// EnterRegion starts a new purchase: the context is reset and regions are shown.
func (w *Workflow) EnterRegion(ctx context.Context, userID int64, out Presenter) error {
	defer w.store.Lock(userID)()
	if err := w.store.Clear(ctx, userID); err != nil {
		return fmt.Errorf("purchase: reset: %w", err)
	}
	w.logTransition(ctx, state.StateIdle, state.StateIdle, "enter_region", "ok")
	return out.Show(ctx, View{Screen: ScreenRegions, State: state.StateIdle})
}

// SelectRegion shows the countries of a region.
func (w *Workflow) SelectRegion(ctx context.Context, userID int64, out Presenter, key string) error {
	defer w.store.Lock(userID)()
	region, ok := w.catalog.Region(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRegion, key)
	}
	from, _, err := w.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("purchase: load: %w", err)
	}
	if err := w.store.Transition(ctx, userID, StateSelectingCountry, WithRegion(region.Key)); err != nil {
		return fmt.Errorf("purchase: save: %w", err)
	}
	w.logTransition(ctx, from, StateSelectingCountry, "select_region", "ok", slog.String("region", region.Key))
	return out.Show(ctx, View{Screen: ScreenCountries, State: StateSelectingCountry, Region: region})
}

// SelectCountry resolves a country (button or free text), fetches its
// packages and shows them. A miss or an empty list leaves the state as is.
func (w *Workflow) SelectCountry(ctx context.Context, userID int64, out Presenter, name string) error {
	defer w.store.Lock(userID)()
	cur, _, err := w.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("purchase: load: %w", err)
	}
	if cur != StateSelectingCountry {
		return w.stale(ctx, cur, "select_country")
	}

	country, regionKey, ok := w.catalog.Lookup(catalog.Normalize(name))
	if !ok {
		w.logTransition(ctx, cur, cur, "select_country", "empty", slog.String("country", logger.SanitizeLimit(name, 64)))
		return out.Show(ctx, View{Screen: ScreenNothingFound, State: cur})
	}
	if err := w.store.Set(ctx, userID, WithCountry(country.Name, country.Code), WithRegion(regionKey)); err != nil {
		return fmt.Errorf("purchase: save: %w", err)
	}
	region, _ := w.catalog.Region(regionKey)

	if err := out.Show(ctx, View{Screen: ScreenLoadingPackages, State: cur, Country: country.Name, Region: region}); err != nil {
		return err
	}

	pkgs, err := w.client.ListPackages(ctx, country.Code)
	outcome := esim.Classify(len(pkgs), err)
	if err := w.store.Set(ctx, userID, WithPackages(pkgs)); err != nil {
		return fmt.Errorf("purchase: save: %w", err)
	}

	attrs := []slog.Attr{
		slog.String("country", country.Name),
		slog.String("location_code", country.Code),
		slog.Int("packages", len(pkgs)),
	}
	if outcome != esim.OutcomeOK {
		// Provider failure and "no coverage" are presented the same way.
		w.logTransition(ctx, cur, cur, "select_country", outcome.String(), attrs...)
		return out.Show(ctx, View{Screen: ScreenNoPackages, State: cur, Country: country.Name, Region: region})
	}

	if err := w.store.Transition(ctx, userID, StateSelectingPackage); err != nil {
		return fmt.Errorf("purchase: save: %w", err)
	}
	w.logTransition(ctx, cur, StateSelectingPackage, "select_country", "ok", attrs...)
	return out.Show(ctx, View{
		Screen:   ScreenChoosePackage,
		State:    StateSelectingPackage,
		Country:  country.Name,
		Region:   region,
		Packages: pkgs,
	})
}

// SelectPackage picks packages[index] of the stored sequence.
func (w *Workflow) SelectPackage(ctx context.Context, userID int64, out Presenter, index int) error {
	defer w.store.Lock(userID)()
	cur, data, err := w.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("purchase: load: %w", err)
	}
	if cur != StateSelectingPackage {
		return w.stale(ctx, cur, "select_package")
	}
	region, _ := w.catalog.Region(data.Region)
	if index < 0 || index >= len(data.Packages) {
		w.logTransition(ctx, cur, cur, "select_package", "stale",
			slog.Int("index", index), slog.Int("packages", len(data.Packages)))
		return out.Show(ctx, View{Screen: ScreenPackageNotFound, State: cur, Country: data.CountryName, Region: region})
	}

	pkg := data.Packages[index]
	if err := w.store.Transition(ctx, userID, StateConfirmingPurchase, WithSelectedPackage(&pkg)); err != nil {
		return fmt.Errorf("purchase: save: %w", err)
	}
	w.logTransition(ctx, cur, StateConfirmingPurchase, "select_package", "ok",
		slog.String("package_code", pkg.PackageCode))
	return out.Show(ctx, View{
		Screen:  ScreenConfirmPurchase,
		State:   StateConfirmingPurchase,
		Country: data.CountryName,
		Region:  region,
		Package: &pkg,
	})
}

// BackToPackages returns from confirmation to the stored package list
// without fetching it again.
func (w *Workflow) BackToPackages(ctx context.Context, userID int64, out Presenter) error {
	defer w.store.Lock(userID)()
	cur, data, err := w.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("purchase: load: %w", err)
	}
	if cur != StateConfirmingPurchase || len(data.Packages) == 0 {
		return w.stale(ctx, cur, "back_to_packages")
	}
	if err := w.store.Transition(ctx, userID, StateSelectingPackage, WithSelectedPackage(nil)); err != nil {
		return fmt.Errorf("purchase: save: %w", err)
	}
	region, _ := w.catalog.Region(data.Region)
	w.logTransition(ctx, cur, StateSelectingPackage, "back_to_packages", "ok")
	return out.Show(ctx, View{
		Screen:   ScreenChoosePackage,
		State:    StateSelectingPackage,
		Country:  data.CountryName,
		Region:   region,
		Packages: data.Packages,
	})
}

// Confirm simulates payment and places the order. On failure the state stays
// ConfirmingPurchase so the user may confirm again.
func (w *Workflow) Confirm(ctx context.Context, userID int64, out Presenter) error {
	defer w.store.Lock(userID)()
	cur, data, err := w.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("purchase: load: %w", err)
	}
	if cur != StateConfirmingPurchase {
		return w.stale(ctx, cur, "confirm")
	}
	if err := out.Show(ctx, View{Screen: ScreenProcessingPayment, State: cur}); err != nil {
		return err
	}

	pkg := data.SelectedPackage
	if pkg == nil {
		w.logTransition(ctx, cur, cur, "confirm", "fail", slog.String("reason", "no_selected_package"))
		return out.Show(ctx, View{Screen: ScreenPaymentError, State: cur})
	}

	orderNo, err := w.client.PlaceOrder(ctx, pkg.PackageCode, pkg.Price, 1)
	n := 0
	if orderNo != "" {
		n = 1
	}
	if outcome := esim.Classify(n, err); outcome != esim.OutcomeOK {
		w.logTransition(ctx, cur, cur, "confirm", outcome.String(), slog.String("package_code", pkg.PackageCode))
		return out.Show(ctx, View{Screen: ScreenPaymentError, State: cur, Package: pkg})
	}

	if err := w.store.Transition(ctx, userID, StatePaymentProcessing, WithOrderNo(orderNo)); err != nil {
		return fmt.Errorf("purchase: save: %w", err)
	}
	if w.recorder != nil {
		w.recorder.Record(ctx, history.Order{
			UserID:      userID,
			OrderNo:     orderNo,
			CountryName: data.CountryName,
			CountryCode: data.CountryCode,
			PackageName: pkg.Name,
			PackageCode: pkg.PackageCode,
			Price:       pkg.Price,
			CreatedAt:   w.opts.Now().UTC(),
		})
	}
	w.logTransition(ctx, cur, StatePaymentProcessing, "confirm", "ok",
		slog.String("order_no", orderNo), slog.String("package_code", pkg.PackageCode))
	return out.Show(ctx, View{
		Screen:  ScreenPaymentSuccess,
		State:   StatePaymentProcessing,
		Country: data.CountryName,
		Package: pkg,
		OrderNo: orderNo,
	})
}

// ShowDetails polls the order until a profile appears or attempts run out,
// then ends the purchase either way.
func (w *Workflow) ShowDetails(ctx context.Context, userID int64, out Presenter) error {
	defer w.store.Lock(userID)()
	cur, data, err := w.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("purchase: load: %w", err)
	}
	if cur != StatePaymentProcessing {
		return w.stale(ctx, cur, "show_details")
	}
	if err := out.Show(ctx, View{Screen: ScreenGettingDetails, State: cur, OrderNo: data.OrderNo}); err != nil {
		return err
	}

	if data.OrderNo == "" {
		if err := w.store.Clear(ctx, userID); err != nil {
			return fmt.Errorf("purchase: reset: %w", err)
		}
		w.logTransition(ctx, cur, state.StateIdle, "show_details", "fail", slog.String("reason", "no_order_no"))
		return out.Show(ctx, View{Screen: ScreenOrderNotFound, State: state.StateIdle})
	}

	profiles, attempts := w.poll(ctx, data.OrderNo)
	if err := w.store.Clear(ctx, userID); err != nil {
		return fmt.Errorf("purchase: reset: %w", err)
	}
	attrs := []slog.Attr{
		slog.String("order_no", data.OrderNo),
		slog.Int("attempts", attempts),
		slog.Int("profiles", len(profiles)),
	}
	if len(profiles) == 0 {
		w.logTransition(ctx, cur, state.StateIdle, "show_details", "empty", attrs...)
		return out.Show(ctx, View{Screen: ScreenESIMNotReady, State: state.StateIdle, OrderNo: data.OrderNo})
	}
	profile := profiles[0]
	w.logTransition(ctx, cur, state.StateIdle, "show_details", "ok", attrs...)
	return out.Show(ctx, View{
		Screen:  ScreenESIMDetails,
		State:   state.StateIdle,
		OrderNo: data.OrderNo,
		Profile: &profile,
	})
}

// poll queries the order up to PollAttempts times, pausing PollInterval
// between attempts. Cancellation of ctx ends polling early.
func (w *Workflow) poll(ctx context.Context, orderNo string) ([]esim.Profile, int) {
	for attempt := 1; attempt <= w.opts.PollAttempts; attempt++ {
		profiles, err := w.client.QueryOrder(ctx, orderNo)
		if esim.Classify(len(profiles), err) == esim.OutcomeOK {
			return profiles, attempt
		}
		if attempt == w.opts.PollAttempts {
			return nil, attempt
		}
		if logger.ShouldSampleDebug() {
			logger.LogEvent(ctx, logger.Purchase, slog.LevelDebug, "purchase.poll",
				slog.String("order_no", orderNo),
				slog.Int("attempt", attempt),
				slog.Duration("poll_interval", w.opts.PollInterval),
			)
		}
		if err := sleep(ctx, w.opts.PollInterval); err != nil {
			return nil, attempt
		}
	}
	return nil, w.opts.PollAttempts
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Cancel ends the purchase from any state.
func (w *Workflow) Cancel(ctx context.Context, userID int64, out Presenter) error {
	defer w.store.Lock(userID)()
	cur, _, err := w.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("purchase: load: %w", err)
	}
	if err := w.store.Clear(ctx, userID); err != nil {
		return fmt.Errorf("purchase: reset: %w", err)
	}
	w.logTransition(ctx, cur, state.StateIdle, "cancel", "cancelled")
	return out.Show(ctx, View{Screen: ScreenOperationCancelled, State: state.StateIdle})
}

func (w *Workflow) stale(ctx context.Context, cur state.State, action string) error {
	w.logTransition(ctx, cur, cur, action, "stale")
	return fmt.Errorf("%w: %s in %s", ErrStaleAction, action, cur)
}

func (w *Workflow) logTransition(ctx context.Context, from, to state.State, action, outcome string, attrs ...slog.Attr) {
	status := "ok"
	level := slog.LevelInfo
	switch outcome {
	case "fail":
		status, level = "fail", slog.LevelWarn
	case "empty", "cancelled":
		status = outcome
	case "stale":
		status = "skip"
	}
	base := []slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.String("action", action),
		slog.String("state", string(from)),
		slog.String("next_state", string(to)),
	}
	logger.LogEvent(ctx, logger.Purchase, level, "purchase.transition", append(base, attrs...)...)
}

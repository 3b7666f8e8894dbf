package purchase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/esimbot/core/telegram/state"
	"github.com/m3rciful/esimbot/internal/catalog"
	"github.com/m3rciful/esimbot/internal/esim"
	"github.com/m3rciful/esimbot/internal/history"
)

const testUser int64 = 42

var testCatalogYAML = []byte(`
regions:
  - key: asia
    title: "Азия"
    countries:
      - {name: Япония, code: JP}
      - {name: Китай, code: CN}
  - key: europe
    title: "Европа"
    countries:
      - {name: Франция, code: FR}
`)

type fakeProvisioner struct {
	mu sync.Mutex

	packages    []esim.Package
	packagesErr error
	listCalls   []string

	orderNo    string
	orderErr   error
	orderCalls int
	lastPrice  int64
	lastCode   string

	// profiles[i] is returned by the (i+1)-th QueryOrder call; calls past
	// the end return nothing.
	profiles   [][]esim.Profile
	queryCalls int
}

func (f *fakeProvisioner) ListPackages(_ context.Context, code string) ([]esim.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, code)
	if f.packagesErr != nil {
		return nil, f.packagesErr
	}
	return append([]esim.Package(nil), f.packages...), nil
}

func (f *fakeProvisioner) PlaceOrder(_ context.Context, code string, price int64, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	f.lastCode, f.lastPrice = code, price
	return f.orderNo, f.orderErr
}

func (f *fakeProvisioner) QueryOrder(_ context.Context, _ string) ([]esim.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.queryCalls <= len(f.profiles) {
		return f.profiles[f.queryCalls-1], nil
	}
	return nil, nil
}

type recordingPresenter struct {
	mu    sync.Mutex
	views []View
}

func (p *recordingPresenter) Show(_ context.Context, v View) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.views = append(p.views, v)
	return nil
}

func (p *recordingPresenter) screens() []Screen {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Screen, 0, len(p.views))
	for _, v := range p.views {
		out = append(out, v.Screen)
	}
	return out
}

func (p *recordingPresenter) last() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.views[len(p.views)-1]
}

type recorderFunc func(ctx context.Context, o history.Order)

func (f recorderFunc) Record(ctx context.Context, o history.Order) { f(ctx, o) }

type harness struct {
	wf     *Workflow
	store  *Store
	client *fakeProvisioner
	out    *recordingPresenter
	orders []history.Order
}

func newHarness(t *testing.T, client *fakeProvisioner) *harness {
	t.Helper()
	cat, err := catalog.Load(testCatalogYAML)
	require.NoError(t, err)
	h := &harness{
		store:  NewStore(state.NewMemoryManager[Context]()),
		client: client,
		out:    &recordingPresenter{},
	}
	rec := recorderFunc(func(_ context.Context, o history.Order) { h.orders = append(h.orders, o) })
	h.wf = New(h.store, client, cat, rec, Options{
		PollAttempts: 5,
		PollInterval: 0,
		Now:          func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	return h
}

func (h *harness) state(t *testing.T) (state.State, Context) {
	t.Helper()
	st, data, err := h.store.Get(context.Background(), testUser)
	require.NoError(t, err)
	return st, data
}

func pkg1() esim.Package {
	return esim.Package{PackageCode: "PKG1", Name: "Japan 1GB", Price: 50000, Volume: 1 << 30, Duration: 7, DurationUnit: "DAY"}
}

func pkg2() esim.Package {
	return esim.Package{PackageCode: "PKG2", Name: "Japan 3GB", Price: 90000, Volume: 3 << 30, Duration: 30, DurationUnit: "DAY"}
}

// driveToConfirm walks the happy path up to ConfirmingPurchase.
func (h *harness) driveToConfirm(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.wf.EnterRegion(ctx, testUser, h.out))
	require.NoError(t, h.wf.SelectRegion(ctx, testUser, h.out, "asia"))
	require.NoError(t, h.wf.SelectCountry(ctx, testUser, h.out, "Япония"))
	require.NoError(t, h.wf.SelectPackage(ctx, testUser, h.out, 0))
}

func TestWorkflowEndToEnd(t *testing.T) {
	profile := esim.Profile{ICCID: "8901", ActivationCode: "LPA:1$smdp$abc", QRCodeURL: "https://qr"}
	client := &fakeProvisioner{
		packages: []esim.Package{pkg1()},
		orderNo:  "ORD123",
		profiles: [][]esim.Profile{{profile}},
	}
	h := newHarness(t, client)
	ctx := context.Background()

	h.driveToConfirm(t)
	st, data := h.state(t)
	require.Equal(t, StateConfirmingPurchase, st)
	require.NotNil(t, data.SelectedPackage)
	assert.Equal(t, "PKG1", data.SelectedPackage.PackageCode)
	assert.Equal(t, "Япония", data.CountryName)
	assert.Equal(t, "JP", data.CountryCode)
	assert.Equal(t, "asia", data.Region)
	assert.Equal(t, []string{"JP"}, client.listCalls)

	require.NoError(t, h.wf.Confirm(ctx, testUser, h.out))
	st, data = h.state(t)
	assert.Equal(t, StatePaymentProcessing, st)
	assert.Equal(t, "ORD123", data.OrderNo)
	assert.Equal(t, "PKG1", client.lastCode)
	assert.EqualValues(t, 50000, client.lastPrice)

	require.Len(t, h.orders, 1)
	assert.Equal(t, history.Order{
		UserID:      testUser,
		OrderNo:     "ORD123",
		CountryName: "Япония",
		CountryCode: "JP",
		PackageName: "Japan 1GB",
		PackageCode: "PKG1",
		Price:       50000,
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}, h.orders[0])

	require.NoError(t, h.wf.ShowDetails(ctx, testUser, h.out))
	last := h.out.last()
	assert.Equal(t, ScreenESIMDetails, last.Screen)
	require.NotNil(t, last.Profile)
	assert.Equal(t, "LPA:1$smdp$abc", last.Profile.ActivationCode)
	assert.Equal(t, 1, client.queryCalls)

	st, data = h.state(t)
	assert.Equal(t, state.StateIdle, st)
	assert.Equal(t, Context{}, data)

	assert.Equal(t, []Screen{
		ScreenRegions,
		ScreenCountries,
		ScreenLoadingPackages,
		ScreenChoosePackage,
		ScreenConfirmPurchase,
		ScreenProcessingPayment,
		ScreenPaymentSuccess,
		ScreenGettingDetails,
		ScreenESIMDetails,
	}, h.out.screens())
}

func TestSelectCountryFreeTextIsNormalized(t *testing.T) {
	client := &fakeProvisioner{packages: []esim.Package{pkg1()}}
	h := newHarness(t, client)
	ctx := context.Background()

	require.NoError(t, h.wf.SelectRegion(ctx, testUser, h.out, "europe"))
	require.NoError(t, h.wf.SelectCountry(ctx, testUser, h.out, "  японИЯ "))

	st, data := h.state(t)
	assert.Equal(t, StateSelectingPackage, st)
	assert.Equal(t, "Япония", data.CountryName)
	// Back navigation follows the country's own region.
	assert.Equal(t, "asia", data.Region)
	assert.Equal(t, []string{"JP"}, client.listCalls)
}

func TestSelectCountryUnknownKeepsState(t *testing.T) {
	client := &fakeProvisioner{packages: []esim.Package{pkg1()}}
	h := newHarness(t, client)
	ctx := context.Background()

	require.NoError(t, h.wf.SelectRegion(ctx, testUser, h.out, "asia"))
	require.NoError(t, h.wf.SelectCountry(ctx, testUser, h.out, "Атлантида"))

	st, data := h.state(t)
	assert.Equal(t, StateSelectingCountry, st)
	assert.Empty(t, data.CountryName)
	assert.Equal(t, ScreenNothingFound, h.out.last().Screen)
	assert.Empty(t, client.listCalls)
}

func TestSelectCountryNoPackagesIsSelfTransition(t *testing.T) {
	for name, client := range map[string]*fakeProvisioner{
		"empty":  {},
		"failed": {packagesErr: errors.New("provider down")},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, client)
			ctx := context.Background()

			require.NoError(t, h.wf.SelectRegion(ctx, testUser, h.out, "asia"))
			require.NoError(t, h.wf.SelectCountry(ctx, testUser, h.out, "Китай"))

			st, data := h.state(t)
			assert.Equal(t, StateSelectingCountry, st)
			assert.Equal(t, "Китай", data.CountryName)
			assert.Empty(t, data.Packages)
			assert.Equal(t, ScreenNoPackages, h.out.last().Screen)
		})
	}
}

func TestSelectPackageOutOfBounds(t *testing.T) {
	client := &fakeProvisioner{packages: []esim.Package{pkg1(), pkg2()}}
	h := newHarness(t, client)
	ctx := context.Background()

	require.NoError(t, h.wf.SelectRegion(ctx, testUser, h.out, "asia"))
	require.NoError(t, h.wf.SelectCountry(ctx, testUser, h.out, "Япония"))

	for _, idx := range []int{-1, 2, 99} {
		require.NoError(t, h.wf.SelectPackage(ctx, testUser, h.out, idx))
		st, data := h.state(t)
		assert.Equal(t, StateSelectingPackage, st, "index %d", idx)
		assert.Nil(t, data.SelectedPackage, "index %d", idx)
		assert.Equal(t, ScreenPackageNotFound, h.out.last().Screen)
	}

	require.NoError(t, h.wf.SelectPackage(ctx, testUser, h.out, 1))
	st, data := h.state(t)
	assert.Equal(t, StateConfirmingPurchase, st)
	require.NotNil(t, data.SelectedPackage)
	assert.Equal(t, "PKG2", data.SelectedPackage.PackageCode)
	assert.Equal(t, "PKG2", h.out.last().Package.PackageCode)
}

func TestBackToPackagesReusesStoredList(t *testing.T) {
	client := &fakeProvisioner{packages: []esim.Package{pkg1(), pkg2()}}
	h := newHarness(t, client)
	ctx := context.Background()

	h.driveToConfirm(t)
	require.NoError(t, h.wf.BackToPackages(ctx, testUser, h.out))

	st, data := h.state(t)
	assert.Equal(t, StateSelectingPackage, st)
	assert.Nil(t, data.SelectedPackage)
	assert.Len(t, data.Packages, 2)
	assert.Len(t, client.listCalls, 1)

	last := h.out.last()
	assert.Equal(t, ScreenChoosePackage, last.Screen)
	assert.Len(t, last.Packages, 2)
}

func TestConfirmFailureStaysInConfirming(t *testing.T) {
	for name, client := range map[string]*fakeProvisioner{
		"error":    {packages: []esim.Package{pkg1()}, orderErr: errors.New("insufficient balance")},
		"no order": {packages: []esim.Package{pkg1()}},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, client)
			h.driveToConfirm(t)

			require.NoError(t, h.wf.Confirm(context.Background(), testUser, h.out))
			st, data := h.state(t)
			assert.Equal(t, StateConfirmingPurchase, st)
			assert.Empty(t, data.OrderNo)
			require.NotNil(t, data.SelectedPackage)
			assert.Equal(t, ScreenPaymentError, h.out.last().Screen)
			assert.Empty(t, h.orders)
		})
	}
}

func TestConfirmWithoutSelectedPackage(t *testing.T) {
	client := &fakeProvisioner{orderNo: "ORD1"}
	h := newHarness(t, client)
	ctx := context.Background()
	require.NoError(t, h.store.Transition(ctx, testUser, StateConfirmingPurchase))

	require.NoError(t, h.wf.Confirm(ctx, testUser, h.out))
	st, _ := h.state(t)
	assert.Equal(t, StateConfirmingPurchase, st)
	assert.Equal(t, ScreenPaymentError, h.out.last().Screen)
	assert.Zero(t, client.orderCalls)
}

func TestShowDetailsSucceedsOnFifthPoll(t *testing.T) {
	profile := esim.Profile{ICCID: "8901", ActivationCode: "LPA:1$x$y"}
	client := &fakeProvisioner{
		packages: []esim.Package{pkg1()},
		orderNo:  "ORD123",
		profiles: [][]esim.Profile{nil, nil, nil, nil, {profile}, {profile}},
	}
	h := newHarness(t, client)
	h.driveToConfirm(t)
	require.NoError(t, h.wf.Confirm(context.Background(), testUser, h.out))

	require.NoError(t, h.wf.ShowDetails(context.Background(), testUser, h.out))
	assert.Equal(t, 5, client.queryCalls)
	assert.Equal(t, ScreenESIMDetails, h.out.last().Screen)
}

func TestShowDetailsNotReadyAfterAllAttempts(t *testing.T) {
	client := &fakeProvisioner{packages: []esim.Package{pkg1()}, orderNo: "ORD123"}
	h := newHarness(t, client)
	h.driveToConfirm(t)
	require.NoError(t, h.wf.Confirm(context.Background(), testUser, h.out))

	require.NoError(t, h.wf.ShowDetails(context.Background(), testUser, h.out))
	assert.Equal(t, 5, client.queryCalls)

	last := h.out.last()
	assert.Equal(t, ScreenESIMNotReady, last.Screen)
	assert.Equal(t, "ORD123", last.OrderNo)

	st, data := h.state(t)
	assert.Equal(t, state.StateIdle, st)
	assert.Equal(t, Context{}, data)
}

func TestShowDetailsWithoutOrderNo(t *testing.T) {
	client := &fakeProvisioner{}
	h := newHarness(t, client)
	ctx := context.Background()
	require.NoError(t, h.store.Transition(ctx, testUser, StatePaymentProcessing))

	require.NoError(t, h.wf.ShowDetails(ctx, testUser, h.out))
	assert.Equal(t, ScreenOrderNotFound, h.out.last().Screen)
	assert.Zero(t, client.queryCalls)
	st, _ := h.state(t)
	assert.Equal(t, state.StateIdle, st)
}

func TestShowDetailsStopsPollingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeProvisioner{orderNo: "ORD9"}
	h := newHarness(t, client)
	h.wf.opts.PollInterval = time.Hour
	require.NoError(t, h.store.Transition(context.Background(), testUser, StatePaymentProcessing, WithOrderNo("ORD9")))

	// The first sleep is an hour; cancel it from the outside.
	go func() {
		for {
			client.mu.Lock()
			n := client.queryCalls
			client.mu.Unlock()
			if n >= 1 {
				cancel()
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	require.NoError(t, h.wf.ShowDetails(ctx, testUser, h.out))
	assert.Equal(t, 1, client.queryCalls)
	assert.Equal(t, ScreenESIMNotReady, h.out.last().Screen)
}

func TestCancelFromEveryState(t *testing.T) {
	states := []state.State{
		state.StateIdle,
		StateSelectingCountry,
		StateSelectingPackage,
		StateConfirmingPurchase,
		StatePaymentProcessing,
	}
	for _, st := range states {
		t.Run(string(st), func(t *testing.T) {
			h := newHarness(t, &fakeProvisioner{})
			ctx := context.Background()
			p := pkg1()
			require.NoError(t, h.store.Transition(ctx, testUser, st,
				WithRegion("asia"), WithCountry("Япония", "JP"), WithPackages([]esim.Package{p}),
				WithSelectedPackage(&p), WithOrderNo("ORD1")))

			require.NoError(t, h.wf.Cancel(ctx, testUser, h.out))
			got, data := h.state(t)
			assert.Equal(t, state.StateIdle, got)
			assert.Equal(t, Context{}, data)
			assert.Equal(t, ScreenOperationCancelled, h.out.last().Screen)
		})
	}
}

func TestStaleActionsAreRejected(t *testing.T) {
	h := newHarness(t, &fakeProvisioner{packages: []esim.Package{pkg1()}, orderNo: "ORD1"})
	ctx := context.Background()

	assert.ErrorIs(t, h.wf.SelectCountry(ctx, testUser, h.out, "Япония"), ErrStaleAction)
	assert.ErrorIs(t, h.wf.SelectPackage(ctx, testUser, h.out, 0), ErrStaleAction)
	assert.ErrorIs(t, h.wf.BackToPackages(ctx, testUser, h.out), ErrStaleAction)
	assert.ErrorIs(t, h.wf.Confirm(ctx, testUser, h.out), ErrStaleAction)
	assert.ErrorIs(t, h.wf.ShowDetails(ctx, testUser, h.out), ErrStaleAction)
	assert.Empty(t, h.out.screens())

	st, _ := h.state(t)
	assert.Equal(t, state.StateIdle, st)
}

func TestSelectRegionUnknown(t *testing.T) {
	h := newHarness(t, &fakeProvisioner{})
	err := h.wf.SelectRegion(context.Background(), testUser, h.out, "mars")
	assert.ErrorIs(t, err, ErrUnknownRegion)
	st, _ := h.state(t)
	assert.Equal(t, state.StateIdle, st)
}

func TestEnterRegionResetsContext(t *testing.T) {
	h := newHarness(t, &fakeProvisioner{packages: []esim.Package{pkg1()}})
	h.driveToConfirm(t)

	require.NoError(t, h.wf.EnterRegion(context.Background(), testUser, h.out))
	st, data := h.state(t)
	assert.Equal(t, state.StateIdle, st)
	assert.Equal(t, Context{}, data)
	assert.Equal(t, ScreenRegions, h.out.last().Screen)
}

func TestConcurrentConfirmPlacesOneOrder(t *testing.T) {
	client := &fakeProvisioner{packages: []esim.Package{pkg1()}, orderNo: "ORD1"}
	h := newHarness(t, client)
	h.driveToConfirm(t)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.wf.Confirm(context.Background(), testUser, h.out)
		}()
	}
	wg.Wait()
	close(errs)

	var stale int
	for err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrStaleAction)
			stale++
		}
	}
	assert.Equal(t, 9, stale)
	assert.Equal(t, 1, client.orderCalls)
	assert.Len(t, h.orders, 1)
}

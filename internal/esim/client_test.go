package esim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	path   string
	header http.Header
	body   map[string]any
}

type provider struct {
	mu       sync.Mutex
	requests []recorded
	reply    func(path string) (int, string)
}

func (p *provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	p.mu.Lock()
	p.requests = append(p.requests, recorded{path: r.URL.Path, header: r.Header.Clone(), body: body})
	p.mu.Unlock()
	status, payload := p.reply(r.URL.Path)
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, payload)
}

func newTestClient(t *testing.T, reply func(path string) (int, string)) (*Client, *provider) {
	t.Helper()
	p := &provider{reply: reply}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/api/v1/open/", AccessCode: "secret", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return c, p
}

func TestNewRequiresAccessCode(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestListPackages(t *testing.T) {
	c, p := newTestClient(t, func(string) (int, string) {
		return http.StatusOK, `{"success":true,"errorCode":null,"obj":{"packageList":[
			{"packageCode":"PKG1","name":"3GB/30days","price":9990000,"volume":3221225472,"duration":30,"durationUnit":"DAY","location":"JP"}]}}`
	})

	pkgs, err := c.ListPackages(context.Background(), "JP")
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "PKG1", pkgs[0].PackageCode)
	assert.Equal(t, int64(3221225472), pkgs[0].Volume)

	require.Len(t, p.requests, 1)
	req := p.requests[0]
	assert.Equal(t, "/api/v1/open/package/list", req.path)
	assert.Equal(t, "secret", req.header.Get("RT-AccessCode"))
	assert.Equal(t, "application/json", req.header.Get("Content-Type"))
	assert.Equal(t, map[string]any{"locationCode": "JP", "type": "", "packageCode": "", "slug": "", "iccid": ""}, req.body)
}

func TestListPackagesRejectsEmptyLocation(t *testing.T) {
	c, p := newTestClient(t, func(string) (int, string) { return http.StatusOK, `{}` })
	_, err := c.ListPackages(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, p.requests)
}

func TestProviderRejection(t *testing.T) {
	c, _ := newTestClient(t, func(string) (int, string) {
		return http.StatusOK, `{"success":false,"errorCode":"200005","errorMsg":"package not found"}`
	})
	pkgs, err := c.ListPackages(context.Background(), "XX")
	assert.Nil(t, pkgs)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "200005", apiErr.Code)
	assert.Equal(t, OutcomeFailed, Classify(len(pkgs), err))
}

func TestHTTPStatusError(t *testing.T) {
	c, _ := newTestClient(t, func(string) (int, string) { return http.StatusBadGateway, "upstream down" })
	_, err := c.QueryOrder(context.Background(), "ORD1")
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestPlaceOrder(t *testing.T) {
	c, p := newTestClient(t, func(string) (int, string) {
		return http.StatusOK, `{"success":true,"obj":{"orderNo":"ORD123"}}`
	})

	orderNo, err := c.PlaceOrder(context.Background(), "PKG1", 9990000, 2)
	require.NoError(t, err)
	assert.Equal(t, "ORD123", orderNo)

	_, err = c.PlaceOrder(context.Background(), "PKG1", 9990000, 0)
	require.NoError(t, err)

	require.Len(t, p.requests, 2)
	first, second := p.requests[0].body, p.requests[1].body
	assert.Equal(t, "/api/v1/open/esim/order", p.requests[0].path)
	assert.EqualValues(t, 19980000, first["amount"])
	assert.EqualValues(t, 9990000, second["amount"])
	lines := first["packageInfoList"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, map[string]any{"packageCode": "PKG1", "count": float64(2), "price": float64(9990000)}, lines[0])

	txRe := regexp.MustCompile(`^WWS-[0-9a-f]{8}$`)
	assert.Regexp(t, txRe, first["transactionId"])
	assert.Regexp(t, txRe, second["transactionId"])
	assert.NotEqual(t, first["transactionId"], second["transactionId"])
}

func TestQueryOrder(t *testing.T) {
	c, p := newTestClient(t, func(string) (int, string) {
		return http.StatusOK, `{"success":true,"obj":{"esimList":[{"iccid":"8988","ac":"LPA:1$rsp$X","qrCodeUrl":"https://q/x.png","esimStatus":"GOT_RESOURCE"}]}}`
	})
	profiles, err := c.QueryOrder(context.Background(), "ORD123")
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "LPA:1$rsp$X", profiles[0].ActivationCode)
	assert.Equal(t, "https://q/x.png", profiles[0].QRCodeURL)
	assert.Equal(t, "8988", profiles[0].ICCID)

	body := p.requests[0].body
	assert.Equal(t, "ORD123", body["orderNo"])
	assert.Equal(t, map[string]any{"pageNum": float64(1), "pageSize": float64(10)}, body["pager"])
}

func TestQueryOrderNotReady(t *testing.T) {
	c, _ := newTestClient(t, func(string) (int, string) {
		return http.StatusOK, `{"success":true,"obj":{"esimList":[]}}`
	})
	profiles, err := c.QueryOrder(context.Background(), "ORD123")
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmpty, Classify(len(profiles), err))
}

func TestTransportErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := New(Config{BaseURL: srv.URL, AccessCode: "x"})
	require.NoError(t, err)
	_, err = c.ListPackages(context.Background(), "JP")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeOK, Classify(1, nil))
	assert.Equal(t, OutcomeEmpty, Classify(0, nil))
	assert.Equal(t, OutcomeFailed, Classify(3, errors.New("x")))
	assert.Equal(t, "fail", OutcomeFailed.String())
}

package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStripe struct {
	mu   sync.Mutex
	form map[string]string
}

func (f *fakeStripe) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/checkout/sessions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())

		f.mu.Lock()
		f.form = map[string]string{}
		for k := range r.PostForm {
			f.form[k] = r.PostForm.Get(k)
		}
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_123","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_123","payment_status":"unpaid","status":"open"}`))
	})
	mux.HandleFunc("/v1/checkout/sessions/cs_test_123", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_123","object":"checkout.session","payment_status":"paid","status":"complete","amount_total":1800,"currency":"cad","client_reference_id":"bob"}`))
	})
	mux.HandleFunc("/v1/checkout/sessions/cs_missing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such checkout.session: 'cs_missing'"}}`))
	})
	mux.HandleFunc("/v1/checkout/sessions/cs_broken", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
	})
	return mux
}

func setupStripe(t *testing.T) (*StripeProcessor, *fakeStripe) {
	f := &fakeStripe{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewStripeProcessor("sk_test_123", srv.URL, srv.Client()), f
}

func TestStripeProcessor_CreateSession(t *testing.T) {
	p, f := setupStripe(t)

	s, err := p.CreateSession(context.Background(), Request{
		Customer:    "bob",
		AmountMinor: 1800,
		Currency:    "cad",
		Description: "VeggiTales Purchase",
		SuccessURL:  "https://veggies.example/api/v1/checkout/complete?token={CHECKOUT_SESSION_ID}",
		CancelURL:   "https://veggies.example/api/v1/checkout/cancel",
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", s.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_123", s.RedirectURL)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "payment", f.form["mode"])
	assert.Equal(t, "1800", f.form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, "cad", f.form["line_items[0][price_data][currency]"])
	assert.Equal(t, "VeggiTales Purchase", f.form["line_items[0][price_data][product_data][name]"])
	assert.Equal(t, "1", f.form["line_items[0][quantity]"])
	assert.Equal(t, "bob", f.form["client_reference_id"])
	assert.NotEmpty(t, f.form["expires_at"])
}

func TestStripeProcessor_ShortExpiryIsOmitted(t *testing.T) {
	p, f := setupStripe(t)

	_, err := p.CreateSession(context.Background(), Request{
		Customer: "bob", AmountMinor: 100, Currency: "cad",
		SuccessURL: "https://x/s", CancelURL: "https://x/c",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	})
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.form["expires_at"]
	assert.False(t, ok)
}

func TestStripeProcessor_FetchSession(t *testing.T) {
	p, _ := setupStripe(t)
	ctx := context.Background()

	c, err := p.FetchSession(ctx, "cs_test_123")
	require.NoError(t, err)
	assert.True(t, c.Paid)
	assert.Equal(t, int64(1800), c.AmountMinor)
	assert.Equal(t, "cad", c.Currency)
	assert.Equal(t, "bob", string(c.Customer))

	_, err = p.FetchSession(ctx, "cs_missing")
	assert.ErrorIs(t, err, ErrUnknownSession)

	_, err = p.FetchSession(ctx, "cs_broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownSession)
}

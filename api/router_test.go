package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/vitwit/x402-paywall"
	"github.com/vitwit/x402-paywall/clients"
	"github.com/vitwit/x402-paywall/encoding"
	"github.com/vitwit/x402-paywall/metrics"
	"github.com/vitwit/x402-paywall/payto"
	"github.com/vitwit/x402-paywall/schemes/exact"
	"github.com/vitwit/x402-paywall/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProcessor struct {
	mu    sync.Mutex
	count int
}

func (p *fakeProcessor) CreateDepositIntent(_ context.Context, req clients.DepositIntentRequest) (*clients.DepositIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	return &clients.DepositIntent{
		ID:             fmt.Sprintf("pi_%d", p.count),
		Amount:         req.Amount,
		Currency:       req.Currency,
		DepositAddress: fmt.Sprintf("0x5EED%036X", p.count),
	}, nil
}

// chainFacilitator accepts a proof when its recipient has received at least the amount.
type chainFacilitator struct {
	mu       sync.Mutex
	balances map[string]int64
}

func (f *chainFacilitator) Verify(_ context.Context, p types.PaymentPayload, req types.PaymentRequirements) (*types.VerifyResponse, error) {
	var evm types.EVMPayload
	if err := json.Unmarshal(p.Payload, &evm); err != nil {
		return &types.VerifyResponse{IsValid: false, InvalidReason: "invalid_payload"}, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	want, err := strconv.ParseInt(req.Amount, 10, 64)
	if err != nil {
		return nil, err
	}
	if f.balances[req.PayTo] < want {
		return &types.VerifyResponse{IsValid: false, InvalidReason: "insufficient_funds"}, nil
	}
	return &types.VerifyResponse{IsValid: true, Payer: evm.Authorization.From}, nil
}

func (f *chainFacilitator) Settle(context.Context, types.PaymentPayload, types.PaymentRequirements) (*types.SettleResponse, error) {
	return &types.SettleResponse{Success: true, Transaction: "0xabc", Network: "eip155:84532"}, nil
}

func (f *chainFacilitator) Supported(context.Context) (*types.SupportedResponse, error) {
	return &types.SupportedResponse{Kinds: []types.SupportedKind{{X402Version: 2, Scheme: "exact", Network: "eip155:84532"}}}, nil
}

func newTestRouter(t *testing.T, fac *chainFacilitator, proc *fakeProcessor, reg *prometheus.Registry) *gin.Engine {
	t.Helper()

	rec, err := metrics.NewPrometheusRecorder(reg)
	require.NoError(t, err)

	server := x402.New(fac, x402.WithMetrics(rec)).Register(types.NetworkBaseSepolia, exact.NewEvmScheme())
	require.NoError(t, server.Initialize(context.Background()))

	resolver, err := payto.NewResolver(proc, payto.WithMetrics(rec))
	require.NoError(t, err)

	r, err := NewRouter(Deps{
		Server:   server,
		PayTo:    resolver.PayTo(),
		Network:  types.NetworkBaseSepolia,
		Price:    "$0.01",
		Metrics:  rec,
		Gatherer: reg,
	})
	require.NoError(t, err)
	return r
}

func get(r http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPaidEndToEnd(t *testing.T) {
	fac := &chainFacilitator{balances: map[string]int64{}}
	proc := &fakeProcessor{}
	r := newTestRouter(t, fac, proc, prometheus.NewRegistry())

	rec := get(r, "/paid", nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var challenge types.PaymentRequired
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &challenge))
	require.Len(t, challenge.Accepts, 1)
	req := challenge.Accepts[0]
	assert.Equal(t, "eip155:84532", req.Network)
	assert.Equal(t, "exact", req.Scheme)
	assert.Equal(t, "10000", req.Amount)
	assert.Equal(t, fmt.Sprintf("0x5EED%036X", 1), req.PayTo)
	assert.Equal(t, 1, proc.count)

	// the client pays the deposit address on chain and submits the proof
	raw, err := json.Marshal(types.EVMPayload{
		Signature: "0x1234",
		Authorization: types.EVMAuthorization{
			From:  "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
			To:    req.PayTo,
			Value: "10000",
		},
	})
	require.NoError(t, err)
	proof, err := encoding.EncodePayment(types.PaymentPayload{X402Version: 2, Accepted: req, Payload: raw})
	require.NoError(t, err)

	h := http.Header{}
	h.Set("PAYMENT-SIGNATURE", proof)

	rec = get(r, "/paid", h)
	require.Equal(t, http.StatusPaymentRequired, rec.Code, "unfunded address is rejected")
	assert.Equal(t, 2, proc.count, "rejection is answered with a fresh address")

	fac.mu.Lock()
	// requirements built from the proof carry the lowered recipient
	fac.balances["0x5eed"+fmt.Sprintf("%036x", 1)] = 10000
	fac.mu.Unlock()

	rec = get(r, "/paid", h)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"foo":"bar"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("PAYMENT-RESPONSE"))
	assert.Equal(t, 2, proc.count, "paid requests mint no intent")
}

func TestConcurrentChallengesUseDistinctAddresses(t *testing.T) {
	proc := &fakeProcessor{}
	r := newTestRouter(t, &chainFacilitator{}, proc, prometheus.NewRegistry())

	addrs := make([]string, 2)
	var wg sync.WaitGroup
	for i := range addrs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := get(r, "/paid", nil)
			var body types.PaymentRequired
			if assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body)) && assert.Len(t, body.Accepts, 1) {
				addrs[i] = body.Accepts[0].PayTo
			}
		}(i)
	}
	wg.Wait()

	assert.NotEmpty(t, addrs[0])
	assert.NotEmpty(t, addrs[1])
	assert.NotEqual(t, addrs[0], addrs[1])
	assert.Equal(t, 2, proc.count)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newTestRouter(t, &chainFacilitator{}, &fakeProcessor{}, reg)

	rec := get(r, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"`+x402.Version+`"}`, rec.Body.String())

	get(r, "/paid", nil)

	rec = get(r, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "paywall_events_total")
	assert.Contains(t, body, `type="challenge"`)
	assert.Contains(t, body, `type="intent_created"`)
	assert.Contains(t, body, "paywall_latency_seconds")
}

func TestNewRouter_InvalidPrice(t *testing.T) {
	_, err := NewRouter(Deps{
		Server:  x402.New(&chainFacilitator{}),
		PayTo:   func(context.Context, types.RequestContext) (string, error) { return "", nil },
		Network: types.NetworkBaseSepolia,
		Price:   "free",
	})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConfigError))
}

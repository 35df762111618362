package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cbx402 "github.com/coinbase/x402/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/x402-paywall/types"
)

func testPayment() (types.PaymentPayload, types.PaymentRequirements) {
	req := types.PaymentRequirements{
		Scheme:            "exact",
		Network:           string(types.NetworkBaseSepolia),
		Amount:            "10000",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		PayTo:             "0x209693bc6afc0c5328ba36faf03c514ef312287c",
		MaxTimeoutSeconds: 300,
	}
	payload := types.PaymentPayload{
		X402Version: 2,
		Accepted:    req,
		Payload:     json.RawMessage(`{"signature":"0x01","authorization":{"from":"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266","to":"0x209693bc6afc0c5328ba36faf03c514ef312287c","value":"10000"}}`),
	}
	return payload, req
}

// fakeInner stands in for the coinbase HTTP client. Responses are decoded
// from wire JSON so the fake stays independent of SDK field names.
type fakeInner struct {
	verifyJSON    string
	settleJSON    string
	supportedJSON string
	err           error
	delay         time.Duration

	gotPayload      []byte
	gotRequirements []byte
	hadDeadline     bool
}

func (f *fakeInner) wait(ctx context.Context) error {
	_, f.hadDeadline = ctx.Deadline()
	if f.delay == 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeInner) Verify(ctx context.Context, p, r []byte) (*cbx402.VerifyResponse, error) {
	f.gotPayload, f.gotRequirements = p, r
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.verifyJSON == "" {
		return nil, f.err
	}
	var resp cbx402.VerifyResponse
	if err := json.Unmarshal([]byte(f.verifyJSON), &resp); err != nil {
		return nil, err
	}
	return &resp, f.err
}

func (f *fakeInner) Settle(ctx context.Context, p, r []byte) (*cbx402.SettleResponse, error) {
	f.gotPayload, f.gotRequirements = p, r
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.settleJSON == "" {
		return nil, f.err
	}
	var resp cbx402.SettleResponse
	if err := json.Unmarshal([]byte(f.settleJSON), &resp); err != nil {
		return nil, err
	}
	return &resp, f.err
}

func (f *fakeInner) GetSupported(ctx context.Context) (cbx402.SupportedResponse, error) {
	var resp cbx402.SupportedResponse
	if err := f.wait(ctx); err != nil {
		return resp, err
	}
	if f.err != nil {
		return resp, f.err
	}
	err := json.Unmarshal([]byte(f.supportedJSON), &resp)
	return resp, err
}

func TestFacilitatorClient_Verify(t *testing.T) {
	inner := &fakeInner{verifyJSON: `{"isValid":true}`}
	c := WrapFacilitator("https://facilitator.test", inner)

	payload, req := testPayment()
	resp, err := c.Verify(context.Background(), payload, req)
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", resp.Payer, "payer falls back to authorization.from")
	assert.True(t, inner.hadDeadline)

	var sentPayload types.PaymentPayload
	require.NoError(t, json.Unmarshal(inner.gotPayload, &sentPayload))
	assert.Equal(t, 2, sentPayload.X402Version)

	var sentReq types.PaymentRequirements
	require.NoError(t, json.Unmarshal(inner.gotRequirements, &sentReq))
	assert.Equal(t, req.PayTo, sentReq.PayTo)
	assert.Equal(t, "10000", sentReq.Amount)
}

func TestFacilitatorClient_VerifyInvalidVerdict(t *testing.T) {
	inner := &fakeInner{
		verifyJSON: `{"isValid":false,"invalidReason":"insufficient_funds","payer":"0xabc"}`,
		err:        errors.New("facilitator rejected payment"),
	}
	payload, req := testPayment()
	resp, err := WrapFacilitator("", inner).Verify(context.Background(), payload, req)
	require.NoError(t, err, "a verdict is returned even when the call also errors")
	assert.False(t, resp.IsValid)
	assert.Equal(t, "insufficient_funds", resp.InvalidReason)
	assert.Equal(t, "0xabc", resp.Payer)
}

func TestFacilitatorClient_VerifyError(t *testing.T) {
	inner := &fakeInner{err: errors.New("facilitator returned 400")}
	payload, req := testPayment()
	_, err := WrapFacilitator("", inner).Verify(context.Background(), payload, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.NotErrorIs(t, err, ErrFacilitatorUnavailable)
}

func TestFacilitatorClient_Settle(t *testing.T) {
	inner := &fakeInner{settleJSON: `{"success":true,"transaction":"0xfeed","network":"eip155:84532","payer":"0xabc"}`}
	payload, req := testPayment()
	resp, err := WrapFacilitator("", inner).Settle(context.Background(), payload, req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "0xfeed", resp.Transaction)
	assert.Equal(t, "eip155:84532", resp.Network)
}

func TestFacilitatorClient_SettleError(t *testing.T) {
	inner := &fakeInner{err: errors.New("nonce already used")}
	payload, req := testPayment()
	_, err := WrapFacilitator("", inner).Settle(context.Background(), payload, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSettlementFailed)
	assert.Contains(t, err.Error(), "nonce already used")
}

func TestFacilitatorClient_Supported(t *testing.T) {
	inner := &fakeInner{supportedJSON: `{"kinds":[{"x402Version":2,"scheme":"exact","network":"eip155:84532"}]}`}
	supported, err := WrapFacilitator("", inner).Supported(context.Background())
	require.NoError(t, err)
	require.Len(t, supported.Kinds, 1)
	_, ok := supported.Find("exact", types.NetworkBaseSepolia)
	assert.True(t, ok)
}

func TestFacilitatorClient_Timeout(t *testing.T) {
	inner := &fakeInner{delay: time.Second}
	c := WrapFacilitator("", inner)
	c.VerifyTimeout = 20 * time.Millisecond

	payload, req := testPayment()
	_, err := c.Verify(context.Background(), payload, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFacilitatorUnavailable)
}

func TestFacilitatorClient_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/verify", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"isValid":true,"payer":"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"}`))
	}))
	defer srv.Close()

	c := NewFacilitatorClient(srv.URL+"/", "Bearer secret")
	assert.Equal(t, srv.URL, c.BaseURL)

	payload, req := testPayment()
	resp, err := c.Verify(context.Background(), payload, req)
	require.NoError(t, err)
	assert.True(t, resp.IsValid)
}

func TestStaticAuth(t *testing.T) {
	h, err := staticAuth("Bearer secret").GetAuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", h.Verify["Authorization"])
	assert.Equal(t, "Bearer secret", h.Settle["Authorization"])
	assert.Equal(t, "Bearer secret", h.Supported["Authorization"])
}

func TestNewFacilitatorClient_Default(t *testing.T) {
	c := NewFacilitatorClient("", "")
	assert.Equal(t, DefaultFacilitatorURL, c.BaseURL)
	assert.Equal(t, 10*time.Second, c.VerifyTimeout)
	assert.Equal(t, 60*time.Second, c.SettleTimeout)
}

package types

import "net/http"

// PaymentHeaderNames lists the header spellings a client may use for the payment proof,
// in lookup order. PAYMENT-SIGNATURE is the v2 name, X-PAYMENT the v1 name.
var PaymentHeaderNames = []string{"PAYMENT-SIGNATURE", "X-PAYMENT"}

// RequestContext is the view of an incoming request handed to pay-to resolvers.
type RequestContext struct {
	Method string
	Path   string
	Header http.Header
}

// PaymentHeader returns the first non-empty payment header value, or "".
func (rc RequestContext) PaymentHeader() string {
	for _, name := range PaymentHeaderNames {
		if v := rc.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// WithoutPayment returns a copy of rc with every payment header removed.
func (rc RequestContext) WithoutPayment() RequestContext {
	h := rc.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	for _, name := range PaymentHeaderNames {
		h.Del(name)
	}
	rc.Header = h
	return rc
}

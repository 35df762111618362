package types

import "errors"

// X402Error carries a machine readable code alongside the message.
type X402Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Err     error       `json:"-"`
}

func (e *X402Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *X402Error) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrInvalidPayload      = "INVALID_PAYLOAD"
	ErrInvalidRequirements = "INVALID_REQUIREMENTS"
	ErrUnsupportedNetwork  = "UNSUPPORTED_NETWORK"
	ErrUnsupportedScheme   = "UNSUPPORTED_SCHEME"
	ErrVerificationFailed  = "VERIFICATION_FAILED"
	ErrSettlementFailed    = "SETTLEMENT_FAILED"
	ErrNetworkError        = "NETWORK_ERROR"
	ErrConfigError         = "CONFIG_ERROR"
	ErrProcessorError      = "PROCESSOR_ERROR"
)

// Invalid reasons produced locally, in the facilitator's vocabulary.
const (
	ReasonInvalidPayload      = "invalid_payload"
	ReasonRecipientMismatch   = "invalid_exact_evm_payload_recipient_mismatch"
	ReasonInsufficientValue   = "invalid_exact_evm_payload_authorization_value"
	ReasonUnsupportedScheme   = "unsupported_scheme"
	ReasonInvalidNetwork      = "invalid_network"
	ReasonUnexpectedVerifyErr = "unexpected_verify_error"
	ReasonUnexpectedSettleErr = "unexpected_settle_error"
)

// NewError builds an X402Error wrapping err, which may be nil.
func NewError(code, message string, err error) *X402Error {
	return &X402Error{Code: code, Message: message, Err: err}
}

// IsCode reports whether err, or anything it wraps, is an X402Error with code.
func IsCode(err error, code string) bool {
	var xe *X402Error
	if errors.As(err, &xe) {
		return xe.Code == code
	}
	return false
}

package types

import (
	"encoding/json"
	"fmt"
)

// X402Version represents the version of the x402 protocol
type X402Version int

const (
	X402Version1 X402Version = 1
	X402Version2 X402Version = 2
)

// ProtocolVersion is the protocol version emitted by this server.
const ProtocolVersion = int(X402Version2)

// PaymentScheme represents different payment schemes
type PaymentScheme string

const (
	SchemeExact PaymentScheme = "exact"
)

func (s PaymentScheme) String() string {
	return string(s)
}

// Price is a human readable price such as "$0.01".
type Price string

// AssetAmount is a price resolved into atomic units of a concrete asset.
type AssetAmount struct {
	Amount string                 `json:"amount"`
	Asset  string                 `json:"asset"`
	Extra  map[string]interface{} `json:"extra,omitempty"`
}

// ResourceInfo describes the protected resource.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentRequirements defines a single payment option the resource server accepts.
type PaymentRequirements struct {
	// Scheme of the payment protocol to use (e.g., "exact").
	Scheme string `json:"scheme" validate:"required"`

	// Network in CAIP-2 form (e.g., "eip155:84532").
	Network string `json:"network" validate:"required"`

	// Amount required in atomic units of the asset.
	// Represented as a string because Go does not support uint256.
	Amount string `json:"amount" validate:"required,numeric"`

	// Address of the EIP-3009 compliant ERC20 contract.
	Asset string `json:"asset" validate:"required"`

	// Address to which the payment must be sent.
	PayTo string `json:"payTo" validate:"required"`

	// Maximum time in seconds the payment authorization stays valid.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds" validate:"gt=0"`

	// Extra information specific to the scheme.
	// For the `exact` scheme on EVM this carries the token `name` and `version`.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequired is the body of a 402 response.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Resource    *ResourceInfo         `json:"resource,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// PaymentPayload is the decoded payment header sent by a client.
type PaymentPayload struct {
	X402Version int           `json:"x402Version"`
	Resource    *ResourceInfo `json:"resource,omitempty"`

	// Accepted echoes the requirements the client chose to pay.
	Accepted PaymentRequirements `json:"accepted"`

	// Payload is the scheme specific proof, kept raw so each scheme decodes its own shape.
	Payload json.RawMessage `json:"payload"`

	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// EVMPayload is the `exact` EVM proof: an EIP-3009 authorization and its signature.
type EVMPayload struct {
	Signature     string           `json:"signature"`
	Authorization EVMAuthorization `json:"authorization"`
}

type EVMAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`       // uint256
	ValidAfter  string `json:"validAfter"`  // uint256 timestamp
	ValidBefore string `json:"validBefore"` // uint256 timestamp
	Nonce       string `json:"nonce"`       // bytes32
}

// VerifyResponse represents the facilitator's verification result.
type VerifyResponse struct {
	IsValid        bool   `json:"isValid"`
	InvalidReason  string `json:"invalidReason,omitempty"`
	InvalidMessage string `json:"invalidMessage,omitempty"`
	Payer          string `json:"payer,omitempty"`
}

// SettleResponse represents the facilitator's settlement result.
type SettleResponse struct {
	Success      bool   `json:"success"`
	ErrorReason  string `json:"errorReason,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Transaction  string `json:"transaction"`
	Network      string `json:"network"`
	Payer        string `json:"payer,omitempty"`
}

type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

type SupportedResponse struct {
	Kinds      []SupportedKind     `json:"kinds"`
	Extensions []string            `json:"extensions,omitempty"`
	Signers    map[string][]string `json:"signers,omitempty"`
}

// Find returns the kind advertised for scheme on network, if any.
func (s *SupportedResponse) Find(scheme string, network Network) (SupportedKind, bool) {
	if s == nil {
		return SupportedKind{}, false
	}
	for _, k := range s.Kinds {
		if k.Scheme == scheme && Network(k.Network) == network {
			return k, true
		}
	}
	return SupportedKind{}, false
}

// Validate checks that the requirements carry every field a client needs to pay.
func (pr *PaymentRequirements) Validate() error {
	if pr.Scheme == "" {
		return fmt.Errorf("paymentRequirements.scheme is required")
	}

	if pr.Network == "" {
		return fmt.Errorf("paymentRequirements.network is required")
	}

	if pr.Amount == "" {
		return fmt.Errorf("paymentRequirements.amount is required")
	}

	if pr.PayTo == "" {
		return fmt.Errorf("paymentRequirements.payTo is required")
	}

	if pr.Asset == "" {
		return fmt.Errorf("paymentRequirements.asset is required")
	}

	if pr.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("paymentRequirements.maxTimeoutSeconds must be greater than 0")
	}

	return nil
}

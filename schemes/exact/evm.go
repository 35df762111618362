// Package exact implements the server side of the "exact" scheme on EVM networks:
// a fixed amount of an EIP-3009 token transferred with transferWithAuthorization.
package exact

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vitwit/x402-paywall/schemes"
	"github.com/vitwit/x402-paywall/types"
	"github.com/vitwit/x402-paywall/utils"
)

// Asset describes the stablecoin accepted on a network.
type Asset struct {
	Address  string
	Name     string
	Version  string
	Decimals int
}

// DefaultAssets maps networks to their USDC deployment.
var DefaultAssets = map[types.Network]Asset{
	types.NetworkBaseSepolia: {
		Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Name:     "USDC",
		Version:  "2",
		Decimals: 6,
	},
	types.NetworkBase: {
		Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Name:     "USD Coin",
		Version:  "2",
		Decimals: 6,
	},
}

type EvmScheme struct {
	assets map[types.Network]Asset
}

var _ schemes.Server = (*EvmScheme)(nil)

// NewEvmScheme returns the exact EVM scheme over DefaultAssets.
func NewEvmScheme() *EvmScheme {
	return &EvmScheme{assets: DefaultAssets}
}

// WithAsset returns a copy of s that also accepts asset on network.
func (s *EvmScheme) WithAsset(network types.Network, asset Asset) *EvmScheme {
	assets := make(map[types.Network]Asset, len(s.assets)+1)
	for n, a := range s.assets {
		assets[n] = a
	}
	assets[network] = asset
	return &EvmScheme{assets: assets}
}

func (s *EvmScheme) Scheme() string {
	return string(types.SchemeExact)
}

// Asset returns the asset configured for network.
func (s *EvmScheme) Asset(network types.Network) (Asset, error) {
	if !network.IsEVM() {
		return Asset{}, types.NewError(types.ErrUnsupportedNetwork, fmt.Sprintf("network %s is not an EVM network", network), nil)
	}
	asset, ok := s.assets[network]
	if !ok {
		return Asset{}, types.NewError(types.ErrUnsupportedNetwork, fmt.Sprintf("no asset configured for network %s", network), nil)
	}
	return asset, nil
}

// ParsePrice converts "$0.01" into 10000 atomic USDC units.
func (s *EvmScheme) ParsePrice(price types.Price, network types.Network) (types.AssetAmount, error) {
	asset, err := s.Asset(network)
	if err != nil {
		return types.AssetAmount{}, err
	}

	dec, err := utils.ParsePrice(string(price))
	if err != nil {
		return types.AssetAmount{}, types.NewError(types.ErrInvalidRequirements, "invalid price", err)
	}

	atomic, err := utils.ParseAmountWithDecimals(dec.String(), asset.Decimals)
	if err != nil {
		return types.AssetAmount{}, types.NewError(types.ErrInvalidRequirements, "invalid price", err)
	}

	return types.AssetAmount{
		Amount: atomic.String(),
		Asset:  asset.Address,
		Extra: map[string]interface{}{
			"name":    asset.Name,
			"version": asset.Version,
		},
	}, nil
}

func (s *EvmScheme) EnhancePaymentRequirements(
	_ context.Context,
	requirements types.PaymentRequirements,
	supported types.SupportedKind,
) (types.PaymentRequirements, error) {
	if len(supported.Extra) == 0 {
		return requirements, nil
	}

	extra := make(map[string]interface{}, len(requirements.Extra)+len(supported.Extra))
	for k, v := range supported.Extra {
		extra[k] = v
	}
	// values already on the requirements take precedence
	for k, v := range requirements.Extra {
		extra[k] = v
	}
	requirements.Extra = extra
	return requirements, nil
}

// CheckPayload rejects proofs that cannot satisfy requirements regardless of
// chain state. Signatures are left to the facilitator.
func (s *EvmScheme) CheckPayload(payload types.PaymentPayload, requirements types.PaymentRequirements) *types.VerifyResponse {
	network := types.Network(requirements.Network)

	if payload.Accepted.Scheme != s.Scheme() || requirements.Scheme != s.Scheme() {
		return invalid(types.ReasonUnsupportedScheme, "scheme is not exact", "")
	}
	if payload.Accepted.Network != requirements.Network {
		return invalid(types.ReasonInvalidNetwork, "payload network does not match requirements network", "")
	}

	var evm types.EVMPayload
	if err := json.Unmarshal(payload.Payload, &evm); err != nil {
		return invalid(types.ReasonInvalidPayload, "payload is not an EIP-3009 authorization", "")
	}
	auth := evm.Authorization
	if evm.Signature == "" {
		return invalid(types.ReasonInvalidPayload, "signature is missing", auth.From)
	}
	if _, err := hexutil.Decode(evm.Signature); err != nil {
		return invalid(types.ReasonInvalidPayload, "signature: "+err.Error(), auth.From)
	}

	if err := utils.ValidateAddressForNetwork(auth.From, network); err != nil {
		return invalid(types.ReasonInvalidPayload, "authorization.from: "+err.Error(), auth.From)
	}
	if err := utils.ValidateAddressForNetwork(auth.To, network); err != nil {
		return invalid(types.ReasonInvalidPayload, "authorization.to: "+err.Error(), auth.From)
	}
	if !utils.SameAddress(auth.To, requirements.PayTo, network) {
		return invalid(types.ReasonRecipientMismatch, "authorization.to does not match payTo", auth.From)
	}

	value, err := utils.ValidateBigInt(auth.Value)
	if err != nil {
		return invalid(types.ReasonInvalidPayload, "authorization.value: "+err.Error(), auth.From)
	}
	required, err := utils.ValidateBigInt(requirements.Amount)
	if err != nil {
		return invalid(types.ReasonInvalidPayload, "requirements.amount: "+err.Error(), auth.From)
	}
	if value.Cmp(required) < 0 {
		return invalid(types.ReasonInsufficientValue, "authorization.value is below the required amount", auth.From)
	}

	return nil
}

func invalid(reason, message, payer string) *types.VerifyResponse {
	return &types.VerifyResponse{
		IsValid:        false,
		InvalidReason:  reason,
		InvalidMessage: message,
		Payer:          payer,
	}
}

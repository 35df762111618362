package clients

import "errors"

var (
	// ErrFacilitatorUnavailable indicates the facilitator could not be reached.
	ErrFacilitatorUnavailable = errors.New("facilitator service unavailable")

	ErrVerificationFailed = errors.New("facilitator verification request failed")

	ErrSettlementFailed = errors.New("facilitator settlement request failed")

	// ErrDepositDetailsMissing means the processor answered without the deposit
	// address shape we rely on.
	ErrDepositDetailsMissing = errors.New("PaymentIntent did not return expected crypto deposit details")
)

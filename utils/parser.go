package utils

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/vitwit/x402-paywall/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	_ = validate.RegisterValidation("caip2", func(fl validator.FieldLevel) bool {
		return ValidateNetwork(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("paymentscheme", func(fl validator.FieldLevel) bool {
		return ValidatePaymentScheme(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("price", func(fl validator.FieldLevel) bool {
		_, err := ParsePrice(fl.Field().String())
		return err == nil
	})
}

// ValidateStruct runs struct tag validation on v.
func ValidateStruct(v interface{}) error {
	return validate.Struct(v)
}

// ParsePaymentRequirements parses and validates PaymentRequirements from JSON
func ParsePaymentRequirements(data []byte) (*types.PaymentRequirements, error) {
	var req types.PaymentRequirements

	if err := json.Unmarshal(data, &req); err != nil {
		return nil, types.NewError(types.ErrInvalidRequirements, "failed to parse payment requirements", err)
	}

	if err := validate.Struct(&req); err != nil {
		return nil, types.NewError(types.ErrInvalidRequirements, fmt.Sprintf("validation failed: %v", err), nil)
	}

	return &req, nil
}

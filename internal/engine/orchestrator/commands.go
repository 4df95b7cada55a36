package orchestrator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/domain/transaction"
	"github.com/linebroker/internal/engine/pricing"
)

// CreateVerification requests a one-shot verification line
type CreateVerification struct {
	UserID     string            `json:"user_id" validate:"required,max=128"`
	ServiceID  string            `json:"service_id" validate:"required,max=64"`
	Capability shared.Capability `json:"capability" validate:"required,oneof=sms voice"`
	Plan       shared.Plan       `json:"plan" validate:"omitempty,oneof=payg starter pro enterprise"`
	AreaCode   string            `json:"area_code" validate:"omitempty,numeric,max=8"`
	Carrier    string            `json:"carrier" validate:"omitempty,max=64"`
	Addons     []string          `json:"addons" validate:"max=3,dive,required"`
}

// CreateRental requests a line for a number of days
type CreateRental struct {
	UserID     string            `json:"user_id" validate:"required,max=128"`
	ServiceID  string            `json:"service_id" validate:"required,max=64"`
	Capability shared.Capability `json:"capability" validate:"required,oneof=sms voice"`
	Plan       shared.Plan       `json:"plan" validate:"omitempty,oneof=payg starter pro enterprise"`
	AreaCode   string            `json:"area_code" validate:"omitempty,numeric,max=8"`
	Carrier    string            `json:"carrier" validate:"omitempty,max=64"`
	Addons     []string          `json:"addons" validate:"max=3,dive,required"`
	Days       int               `json:"days" validate:"required,min=1,max=90"`
}

// ExtendRental adds days to an active rental
type ExtendRental struct {
	UserID        string    `json:"user_id" validate:"required"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Days          int       `json:"days" validate:"required,min=1,max=90"`
}

// RetryCommand replaces an expired verification with a new one
type RetryCommand struct {
	UserID        string                  `json:"user_id" validate:"required"`
	TransactionID uuid.UUID               `json:"transaction_id"`
	Option        transaction.RetryOption `json:"option" validate:"required,oneof=reuse_same_line new_line upgrade_to_voice"`
	Plan          shared.Plan             `json:"plan" validate:"omitempty,oneof=payg starter pro enterprise"`
}

// QuoteCommand previews a price
type QuoteCommand struct {
	UserID     string            `json:"user_id" validate:"required"`
	ServiceID  string            `json:"service_id" validate:"required,max=64"`
	Capability shared.Capability `json:"capability" validate:"required,oneof=sms voice"`
	Plan       shared.Plan       `json:"plan" validate:"omitempty,oneof=payg starter pro enterprise"`
	RentalDays int               `json:"rental_days" validate:"min=0,max=90"`
	Addons     []string          `json:"addons" validate:"max=3,dive,required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateCommand checks cmd against its tags and reports the first problem
// as a ValidationError
func validateCommand(cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return shared.NewValidationError(fe.Field(), describe(fe))
	}
	return shared.NewValidationError("", err.Error())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min", "max":
		return fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param())
	case "numeric":
		return "must be numeric"
	default:
		return fmt.Sprintf("failed on %q", fe.Tag())
	}
}

// checkAddons enforces the inputs some add-ons depend on
func checkAddons(addons []string, areaCode, carrier string) error {
	for _, addon := range addons {
		switch strings.ToLower(strings.TrimSpace(addon)) {
		case pricing.AddonCustomLine:
			if areaCode == "" {
				return shared.NewValidationError("area_code", "required by the custom_line add-on")
			}
		case pricing.AddonGuaranteedCarrier:
			if carrier == "" {
				return shared.NewValidationError("carrier", "required by the guaranteed_carrier add-on")
			}
		}
	}
	return nil
}

func hasAddon(addons []string, name string) bool {
	for _, addon := range addons {
		if strings.EqualFold(strings.TrimSpace(addon), name) {
			return true
		}
	}
	return false
}

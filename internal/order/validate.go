package order

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// ValidateAddress checks that every required address field is filled in.
func ValidateAddress(a DeliveryAddress) error {
	return structError("delivery_address", validate.Struct(a))
}

// ValidateGuest checks full name, a valid-looking email and phone number.
func ValidateGuest(g GuestInfo) error {
	return structError("guest_info", validate.Struct(g))
}

// ValidateCustomer enforces that exactly one of userID and guest is present.
func ValidateCustomer(userID string, guest *GuestInfo) error {
	switch {
	case userID != "" && guest != nil:
		return &ValidationError{Field: "guest_info", Reason: "must be empty for signed-in customers"}
	case userID == "" && guest == nil:
		return &ValidationError{Field: "guest_info", Reason: "is required for guest checkout"}
	case guest != nil:
		return ValidateGuest(*guest)
	}
	return nil
}

// ValidateContact checks the contact phone number.
func ValidateContact(number string) error {
	if strings.TrimSpace(number) == "" {
		return &ValidationError{Field: "contact_number", Reason: "is required"}
	}
	return nil
}

// structError converts the first validator failure into a *ValidationError.
func structError(prefix string, err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Field: prefix, Reason: err.Error()}
	}
	fe := fieldErrs[0]
	reason := "is required"
	if fe.Tag() == "email" {
		reason = "must be a valid email address"
	}
	return &ValidationError{Field: fmt.Sprintf("%s.%s", prefix, fe.Field()), Reason: reason}
}

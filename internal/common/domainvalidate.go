package common

import (
	"regexp"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

var (
	// Two-digit state code, PAN, entity digit, the literal Z, checksum.
	gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
	phonePattern = regexp.MustCompile(`^(\+91[ -]?)?[6-9][0-9]{9}$`)
	pinPattern   = regexp.MustCompile(`^[1-9][0-9]{5}$`)
)

// ValidGSTIN reports whether s is a well-formed 15-character GSTIN.
// Case and surrounding whitespace are forgiven; structure is not.
func ValidGSTIN(s string) bool {
	return gstinPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// ValidPhone accepts a 10-digit Indian mobile number, optionally +91-prefixed.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(strings.TrimSpace(s))
}

// ValidPINCode accepts a 6-digit postal code.
func ValidPINCode(s string) bool {
	return pinPattern.MatchString(strings.TrimSpace(s))
}

// NewValidator returns a request validator with the domain tags
// (gstin, inphone, pincode) registered alongside the built-ins.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("gstin", func(fl validator.FieldLevel) bool {
		return ValidGSTIN(fl.Field().String())
	})
	_ = v.RegisterValidation("inphone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	_ = v.RegisterValidation("pincode", func(fl validator.FieldLevel) bool {
		return ValidPINCode(fl.Field().String())
	})
	return v
}

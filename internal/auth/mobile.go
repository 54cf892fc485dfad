package auth

import (
	"strings"

	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
)

const mobileDigits = 10

var mobileSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")

// NormalizeMobile reduces an Indian mobile number to its 10 subscriber digits.
// It accepts a +91 prefix, a bare 91 prefix on 12 digits and a trunk 0.
func NormalizeMobile(raw string) (string, error) {
	mobile := mobileSeparators.Replace(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(mobile, "+91"):
		mobile = mobile[3:]
	case strings.HasPrefix(mobile, "91") && len(mobile) == mobileDigits+2:
		mobile = mobile[2:]
	case strings.HasPrefix(mobile, "0") && len(mobile) == mobileDigits+1:
		mobile = mobile[1:]
	}
	if len(mobile) != mobileDigits {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "mobile number must have 10 digits")
	}
	for _, r := range mobile {
		if r < '0' || r > '9' {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "mobile number must contain digits only")
		}
	}
	return mobile, nil
}

// MaskMobile keeps the last four digits for logs.
func MaskMobile(mobile string) string {
	if len(mobile) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(mobile)-4) + mobile[len(mobile)-4:]
}

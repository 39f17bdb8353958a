package pairing

import (
	"fmt"
	"regexp"
)

// DisplayPIN selects the display-PIN flow in Setup.Run: the code is not
// known until the accessory shows it.
const DisplayPIN = ""

var pinPattern = regexp.MustCompile(`^\d{3}-\d{2}-\d{3}$`)

// ValidatePIN checks that pin has the XXX-XX-XXX digit format.
func ValidatePIN(pin string) error {
	if !pinPattern.MatchString(pin) {
		return fmt.Errorf("%w: %q", ErrInvalidPIN, pin)
	}
	return nil
}

// NormalizePIN accepts XXX-XX-XXX or eight bare digits and returns the
// dashed form.
func NormalizePIN(pin string) (string, error) {
	if len(pin) == 8 {
		dashed := pin[:3] + "-" + pin[3:5] + "-" + pin[5:]
		if pinPattern.MatchString(dashed) {
			return dashed, nil
		}
	}
	if err := ValidatePIN(pin); err != nil {
		return "", err
	}
	return pin, nil
}

// IsTrivialPIN reports whether pin is one of the codes HAP forbids
// accessories from using. It is advisory: controllers still pair with
// whatever code the accessory presents.
func IsTrivialPIN(pin string) bool {
	digits := make([]byte, 0, 8)
	for i := 0; i < len(pin); i++ {
		if pin[i] >= '0' && pin[i] <= '9' {
			digits = append(digits, pin[i])
		}
	}
	if len(digits) != 8 {
		return false
	}
	s := string(digits)
	if s == "12345678" || s == "87654321" {
		return true
	}
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}

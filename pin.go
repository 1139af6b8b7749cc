package accounts

import (
	"crypto/rand"
	"math/big"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultPINLength is the number of digits in a login PIN
const DefaultPINLength = 15

var pinDigitRange = big.NewInt(10)

// GeneratePIN returns a string of length random decimal digits
// drawn from crypto/rand.
func GeneratePIN(length int) (string, error) {
	if length <= 0 {
		length = DefaultPINLength
	}

	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, pinDigitRange)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate pin")
		}
		out[i] = byte('0' + n.Int64())
	}
	return string(out), nil
}

// NewPINGenerator returns a generator of fixed length PINs
func NewPINGenerator(length int) PINGenerator {
	return PINGeneratorFunc(func() (string, error) {
		return GeneratePIN(length)
	})
}

// IsWellFormedPIN reports whether pin is made of digits only and, when
// length is positive, has exactly that many of them.
func IsWellFormedPIN(pin string, length int) bool {
	if pin == "" {
		return false
	}
	if length > 0 && len(pin) != length {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

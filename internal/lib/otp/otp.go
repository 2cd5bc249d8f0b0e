package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

// NewCode draws a 6-digit code uniformly from [100000, 999999]. The range
// deliberately excludes codes below 100000 to stay compatible with codes
// already issued by the previous generator.
func NewCode() (string, error) {
	const op = "otp.NewCode"

	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return strconv.FormatInt(100000+n.Int64(), 10), nil
}

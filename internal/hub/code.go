package hub

import (
	"crypto/rand"
	"math/big"
)

// codeLength is short enough to read over voice chat and long enough
// that collisions stay rare at this scale.
const codeLength = 4

// GenerateCode returns a random room code. Ambiguous characters (O/0,
// I/1) are left out of the charset.
func GenerateCode() (string, error) {
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	code := make([]byte, codeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

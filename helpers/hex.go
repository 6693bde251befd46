package helpers

import (
	"encoding/hex"
	"strings"
)

func MustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// UpperHex is two upper case hex digits per byte, no separators.
func UpperHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

package broker

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	SessionPrefix = "naval-sim-"
	ClientPrefix  = "cadet-"

	suffixLength   = 5
	suffixCharset  = "abcdefghijklmnopqrstuvwxyz0123456789"
	maxIdentityLen = 64
)

// NewSessionToken returns a shareable host identity such as "naval-sim-k3x9q".
func NewSessionToken() (string, error) {
	return newIdentity(SessionPrefix)
}

// NewClientIdentity returns a throwaway identity for a joining participant.
func NewClientIdentity() (string, error) {
	return newIdentity(ClientPrefix)
}

func newIdentity(prefix string) (string, error) {
	code := make([]byte, suffixLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(suffixCharset))))
		if err != nil {
			return "", err
		}
		code[i] = suffixCharset[num.Int64()]
	}
	return prefix + string(code), nil
}

// ValidIdentity reports whether id may be registered with a rendezvous service.
func ValidIdentity(id string) bool {
	if id == "" || len(id) > maxIdentityLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return !strings.HasPrefix(id, "-") && !strings.HasSuffix(id, "-")
}

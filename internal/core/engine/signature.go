package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureScheme is the only accepted signature version.
const SignatureScheme = "v1"

// Signature verification failures. Callers reject the delivery on any of
// them.
var (
	ErrSignatureMissing   = errors.New("webhook signature missing")
	ErrSignatureMalformed = errors.New("webhook signature malformed")
	ErrSignatureMismatch  = errors.New("webhook signature mismatch")
	ErrSecretMissing      = errors.New("webhook secret not configured")
)

// SignPayload returns the hex HMAC-SHA256 of timestamp + "." + body.
func SignPayload(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against the expected HMAC of the signed
// payload. header holds one or more comma separated "v1=<hex>" values; any
// matching value is accepted.
func VerifySignature(secret []byte, header, timestamp string, body []byte) error {
	if len(secret) == 0 {
		return ErrSecretMissing
	}

	candidates, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	expected, err := hex.DecodeString(SignPayload(secret, timestamp, body))
	if err != nil {
		return err
	}

	for _, candidate := range candidates {
		if hmac.Equal(candidate, expected) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

func parseSignatureHeader(header string) ([][]byte, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrSignatureMissing
	}

	var candidates [][]byte
	for _, part := range strings.Split(header, ",") {
		scheme, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || scheme != SignatureScheme {
			continue
		}
		if len(value) != sha256.Size*2 {
			return nil, ErrSignatureMalformed
		}
		decoded, err := hex.DecodeString(value)
		if err != nil {
			return nil, ErrSignatureMalformed
		}
		candidates = append(candidates, decoded)
	}

	if len(candidates) == 0 {
		return nil, ErrSignatureMalformed
	}
	return candidates, nil
}

package authcore

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// totpVerifier implements RFC 6238 time-based one-time codes over the
// user's stored secret.
type totpVerifier struct {
	config TwoFactorConfig
}

func newTOTPVerifier(cfg TwoFactorConfig) *totpVerifier {
	return &totpVerifier{config: cfg}
}

// generateSecret returns a fresh random secret and its base32 encoding.
func (v *totpVerifier) generateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32NoPad.EncodeToString(raw), nil
}

// provisionURI renders the otpauth:// URI authenticator apps enroll from.
func (v *totpVerifier) provisionURI(secretBase32, account string) string {
	label := url.PathEscape(v.config.Issuer + ":" + account)

	values := url.Values{}
	values.Set("secret", secretBase32)
	values.Set("issuer", v.config.Issuer)
	values.Set("period", strconv.Itoa(v.config.Period))
	values.Set("digits", strconv.Itoa(v.config.Digits))
	values.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + values.Encode()
}

// verifyCode checks code against the secret, accepting the configured skew
// in adjacent time steps. Comparison is constant-time.
func (v *totpVerifier) verifyCode(secretBase32, code string, now time.Time) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != v.config.Digits || !isDigits(trimmed) {
		return false, nil
	}

	secret, err := base32NoPad.DecodeString(strings.ToUpper(strings.TrimRight(secretBase32, "=")))
	if err != nil || len(secret) == 0 {
		return false, errors.New("malformed two-factor secret")
	}

	baseCounter := now.Unix() / int64(v.config.Period)
	for step := -v.config.Skew; step <= v.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotpCode(secret, counter, v.config.Digits)), []byte(trimmed)) == 1 {
			return true, nil
		}
	}

	return false, nil
}

func hotpCode(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	code := strconv.FormatUint(uint64(value%mod), 10)
	for len(code) < digits {
		code = "0" + code
	}
	return code
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

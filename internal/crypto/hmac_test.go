package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL2HeadersAtDeterministic(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("super-secret"))
	auth := &HMACAuth{Key: "api-key", Secret: secret, Passphrase: "pass"}

	h1 := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000000)
	h2 := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000000)
	assert.Equal(t, h1, h2)

	assert.Equal(t, "0xabc", h1["POLY_ADDRESS"])
	assert.Equal(t, "api-key", h1["POLY_API_KEY"])
	assert.Equal(t, "1700000000", h1["POLY_TIMESTAMP"])
	assert.Equal(t, "pass", h1["POLY_PASSPHRASE"])

	mac := hmac.New(sha256.New, []byte("super-secret"))
	mac.Write([]byte("1700000000POST/order" + `{"x":1}`))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, h1["POLY_SIGNATURE"])
}

func TestL2HeadersSignatureCoversTimestampAndBody(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("super-secret"))
	auth := &HMACAuth{Key: "api-key", Secret: secret, Passphrase: "pass"}

	base := auth.L2HeadersAt("0xabc", "GET", "/orders", "", 1700000000)
	laterTS := auth.L2HeadersAt("0xabc", "GET", "/orders", "", 1700000001)
	withBody := auth.L2HeadersAt("0xabc", "GET", "/orders", "x", 1700000000)

	assert.NotEqual(t, base["POLY_SIGNATURE"], laterTS["POLY_SIGNATURE"])
	assert.NotEqual(t, base["POLY_SIGNATURE"], withBody["POLY_SIGNATURE"])
}

func TestHMACAuthStringRedactsKey(t *testing.T) {
	auth := &HMACAuth{Key: "0123456789abcdef", Secret: "s", Passphrase: "p"}
	s := auth.String()
	assert.NotContains(t, s, "9abcdef")
	require.Contains(t, s, "01234567")
}

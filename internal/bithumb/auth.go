package bithumb

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Auth holds exchange credentials and produces the signed headers Bithumb's
// private endpoints require. It is a separate type from Client so the
// signing scheme can be unit-tested without any HTTP machinery.
type Auth struct {
	apiKey    string
	secretKey []byte
	nonce     int64 // monotonic counter, bumped on every attempt
}

// NewAuth builds an Auth from raw credentials.
func NewAuth(apiKey, secretKey string) *Auth {
	return &Auth{
		apiKey:    apiKey,
		secretKey: []byte(secretKey),
		nonce:     time.Now().UnixMilli(),
	}
}

// SignedHeaders builds the Api-Key/Api-Sign/Api-Nonce header set and the
// exact form body to POST for a signed call to endpoint with the given
// extra params. The nonce is bumped on every call, including calls whose
// signing later fails to dispatch. A nonce is burned on attempt, not on
// success, so consumers must tolerate gaps.
func (a *Auth) SignedHeaders(endpoint string, params map[string]string) (headers map[string]string, body url.Values) {
	nonce := strconv.FormatInt(atomic.AddInt64(&a.nonce, 1), 10)

	p := make(map[string]string, len(params)+1)
	for k, v := range params {
		p[k] = v
	}
	p["endpoint"] = endpoint

	encoded := encodeSorted(p)
	signingString := endpoint + "\x00" + encoded + "\x00" + nonce
	sig := a.sign(signingString)

	form := url.Values{}
	for k, v := range p {
		form.Set(k, v)
	}

	return map[string]string{
		"Api-Key":   a.apiKey,
		"Api-Sign":  sig,
		"Api-Nonce": nonce,
	}, form
}

// sign implements the exchange's HMAC-SHA512 scheme: HMAC-SHA512 over the
// signing string, hex-encode the digest (lowercase), then Base64-encode
// that hex *string*'s bytes. This "Base64-of-hex" quirk (not Base64 of the
// raw HMAC bytes) must be preserved exactly to interoperate.
func (a *Auth) sign(signingString string) string {
	mac := hmac.New(sha512.New, a.secretKey)
	mac.Write([]byte(signingString))
	hexDigest := hex.EncodeToString(mac.Sum(nil))
	return base64.StdEncoding.EncodeToString([]byte(hexDigest))
}

// encodeSorted url-encodes params as a query string with keys sorted
// alphabetically, matching the exchange's requirement that the signed
// string have stable key order.
func encodeSorted(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Bridge authentication headers.
const (
	HeaderKey       = "X-FXBOT-KEY"
	HeaderTimestamp = "X-FXBOT-TIMESTAMP"
	HeaderSignature = "X-FXBOT-SIGNATURE"
)

// HMACAuth holds the credentials for signed requests to the broker bridge.
type HMACAuth struct {
	Key    string
	Secret string
}

// Headers returns the signing headers for a request. The signature is
// HMAC-SHA256(secret, timestamp+method+path+body) encoded as base64.
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp.
func (h *HMACAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderKey:       h.Key,
		HeaderTimestamp: ts,
		HeaderSignature: h.sign(ts, method, path, body),
	}
}

// Verify checks a signature produced by Headers, rejecting timestamps more
// than skew away from now.
func (h *HMACAuth) Verify(method, path, body, ts, sig string, now time.Time, skew time.Duration) error {
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("crypto: bad timestamp %q", ts)
	}
	if d := now.Sub(time.Unix(unix, 0)); d > skew || d < -skew {
		return fmt.Errorf("crypto: timestamp outside %s window", skew)
	}
	want := h.sign(ts, method, path, body)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return fmt.Errorf("crypto: signature mismatch")
	}
	return nil
}

func (h *HMACAuth) sign(ts, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write([]byte(ts + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}

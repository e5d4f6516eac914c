package imaging

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// URLKind classifies how an image URL grants access.
type URLKind string

const (
	// URLPublic never expires and is never refreshed.
	URLPublic URLKind = "public"

	// URLSigned carries a time-limited access token.
	URLSigned URLKind = "signed"
)

// signingParams are query parameters (lower-cased) that mark a signed URL.
var signingParams = []string{
	"token",
	"x-amz-signature",
	"x-amz-expires",
	"x-amz-credential",
	"x-goog-signature",
	"x-goog-expires",
	"signature",
	"expires",
	"sig",
	"se",
}

// signedPathSegments mark storage endpoints that serve signed objects.
var signedPathSegments = []string{"/object/sign/", "/render/image/sign/"}

// ClassifyURL decides whether u is a public or a signed URL by inspecting its
// query parameters and path shape. Unparseable URLs are public.
func ClassifyURL(u string) URLKind {
	parsed, err := url.Parse(u)
	if err != nil {
		return URLPublic
	}

	for _, seg := range signedPathSegments {
		if strings.Contains(parsed.Path, seg) {
			return URLSigned
		}
	}
	for key := range parsed.Query() {
		k := strings.ToLower(key)
		for _, p := range signingParams {
			if k == p {
				return URLSigned
			}
		}
	}
	return URLPublic
}

// IsSigned is shorthand for ClassifyURL(u) == URLSigned.
func IsSigned(u string) bool {
	return ClassifyURL(u) == URLSigned
}

const amzDateLayout = "20060102T150405Z"

// ExpiresAt extracts the expiry instant of a signed URL. The second result is
// false when the URL carries no recognizable expiry.
//
// Recognized forms, in order:
//
//	X-Amz-Date + X-Amz-Expires (seconds)
//	X-Goog-Date + X-Goog-Expires (seconds)
//	Expires (unix seconds)
//	se (RFC 3339)
//	token (JWT with an exp claim)
func ExpiresAt(u string) (time.Time, bool) {
	parsed, err := url.Parse(u)
	if err != nil {
		return time.Time{}, false
	}
	q := lowerQuery(parsed.Query())

	for _, prefix := range []string{"x-amz-", "x-goog-"} {
		if t, ok := datePlusExpiry(q.Get(prefix+"date"), q.Get(prefix+"expires")); ok {
			return t, true
		}
	}
	if v := q.Get("expires"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(secs, 0), true
		}
	}
	if v := q.Get("se"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	}
	if v := q.Get("token"); v != "" {
		if t, ok := jwtExpiry(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsExpired reports whether a signed URL is past its expiry at now, with a
// small skew so a URL about to lapse mid-download counts as expired. URLs
// without a known expiry are never considered expired.
func IsExpired(u string, now time.Time) bool {
	if ClassifyURL(u) != URLSigned {
		return false
	}
	exp, ok := ExpiresAt(u)
	if !ok {
		return false
	}
	return !now.Add(expirySkew).Before(exp)
}

const expirySkew = 10 * time.Second

// AssetKey strips signing parameters from u so that different signatures of
// the same object share a cache entry.
func AssetKey(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	q := parsed.Query()
	for key := range q {
		k := strings.ToLower(key)
		if strings.HasPrefix(k, "x-amz-") || strings.HasPrefix(k, "x-goog-") {
			q.Del(key)
			continue
		}
		for _, p := range signingParams {
			if k == p {
				q.Del(key)
				break
			}
		}
	}
	parsed.RawQuery = q.Encode()
	parsed.Path = strings.Replace(parsed.Path, "/object/sign/", "/object/", 1)
	return parsed.String()
}

func lowerQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[strings.ToLower(k)] = v
	}
	return out
}

func datePlusExpiry(date, expires string) (time.Time, bool) {
	if date == "" || expires == "" {
		return time.Time{}, false
	}
	start, err := time.Parse(amzDateLayout, date)
	if err != nil {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return start.Add(time.Duration(secs) * time.Second), true
}

// jwtExpiry reads the exp claim of a JWT without verifying it; the token is
// only inspected to schedule a refresh.
func jwtExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return time.Time{}, false
	}
	var claims struct {
		Exp *float64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == nil {
		return time.Time{}, false
	}
	return time.Unix(int64(*claims.Exp), 0), true
}

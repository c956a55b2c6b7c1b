package utils

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nonceAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// OAuth1Credentials are the four values needed to sign a user-context request.
type OAuth1Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string
}

func (c OAuth1Credentials) Complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.Token != "" && c.TokenSecret != ""
}

// PercentEncode applies RFC 3986 encoding: only ALPHA, DIGIT, '-', '.', '_' and '~' pass through.
func PercentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

// SignatureBaseString builds METHOD&baseURL&params. params must already contain every
// query, form and oauth_* parameter; binary bodies are never part of it.
func SignatureBaseString(method, baseURL string, params url.Values) string {
	pairs := make([]string, 0, len(params))
	for key, values := range params {
		k := PercentEncode(key)
		for _, v := range values {
			pairs = append(pairs, k+"="+PercentEncode(v))
		}
	}
	sort.Strings(pairs)

	return strings.ToUpper(method) + "&" + PercentEncode(baseURL) + "&" + PercentEncode(strings.Join(pairs, "&"))
}

func HMACSHA1Signature(base, consumerSecret, tokenSecret string) string {
	key := PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// normalizeURL strips query, fragment and default ports and lowercases scheme and host.
func normalizeURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// OAuth1Header signs a request and returns the Authorization header value. form holds
// url-encoded body parameters, if any; query parameters are read from rawURL.
func OAuth1Header(method, rawURL string, form url.Values, creds OAuth1Credentials, nonce string, timestamp int64) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	oauthParams := map[string]string{
		"oauth_consumer_key":     creds.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(timestamp, 10),
		"oauth_token":            creds.Token,
		"oauth_version":          "1.0",
	}

	params := url.Values{}
	for k, vs := range u.Query() {
		params[k] = append(params[k], vs...)
	}
	for k, vs := range form {
		params[k] = append(params[k], vs...)
	}
	for k, v := range oauthParams {
		params.Set(k, v)
	}

	base := SignatureBaseString(method, normalizeURL(u), params)
	oauthParams["oauth_signature"] = HMACSHA1Signature(base, creds.ConsumerSecret, creds.TokenSecret)

	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, PercentEncode(k), PercentEncode(oauthParams[k])))
	}
	return "OAuth " + strings.Join(parts, ", "), nil
}

// SignOAuth1 signs with a fresh nonce and the current time.
func SignOAuth1(method, rawURL string, form url.Values, creds OAuth1Credentials) (string, error) {
	nonce, err := gonanoid.Generate(nonceAlphabet, 32)
	if err != nil {
		return "", err
	}
	return OAuth1Header(method, rawURL, form, creds, nonce, time.Now().Unix())
}

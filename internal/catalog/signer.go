package catalog

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// escape percent-encodes per RFC 3986, which the signature is computed over.
func escape(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(url.QueryEscape(s), "+", "%20"), "%7E", "~")
}

// canonicalQuery joins the escaped parameters sorted by key.
func canonicalQuery(params map[string]string) string {
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
		b.WriteString(escape(k))
		b.WriteByte('=')
		b.WriteString(escape(params[k]))
	}
	return b.String()
}

// Sign computes the request signature: base64 HMAC-SHA256 of
// "METHOD\nhost\npath\ncanonical-query" keyed with the secret.
func Sign(secret, method, host, path string, params map[string]string) string {
	toSign := method + "\n" + host + "\n" + path + "\n" + canonicalQuery(params)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(toSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Package crypto canonicalizes and signs payment gateway parameter sets.
package crypto

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
)

const (
	SecureHashField     = "vnp_SecureHash"
	SecureHashTypeField = "vnp_SecureHashType"
)

var ErrMissingSecret = errors.New("signing secret is required")

// Pair is one canonical parameter. Key and Value are already percent-encoded.
type Pair struct {
	Key   string
	Value string
}

// Signer computes HMAC-SHA512 digests over canonical parameter sets.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

// componentUnescaper restores the marks that browser component encoding
// leaves as-is but url.QueryEscape percent-encodes.
var componentUnescaper = strings.NewReplacer(
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EscapeComponent percent-encodes s the way the gateway does: unreserved
// characters and !'()* stay literal, space becomes "+".
func EscapeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}

// Canonicalize escapes every key and value with EscapeComponent and orders
// the pairs by escaped key. Empty values are kept.
func Canonicalize(params map[string]string) []Pair {
	pairs := make([]Pair, 0, len(params))
	for key, value := range params {
		pairs = append(pairs, Pair{
			Key:   EscapeComponent(key),
			Value: EscapeComponent(value),
		})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Key < pairs[j].Key
	})
	return pairs
}

// SigningString joins canonical pairs as key=value&... exactly as they are.
// Values are not escaped a second time.
func SigningString(pairs []Pair) string {
	var b strings.Builder
	for i, pair := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(pair.Key)
		b.WriteByte('=')
		b.WriteString(pair.Value)
	}
	return b.String()
}

// Sign returns the lowercase hex HMAC-SHA512 of the signing string.
func (s *Signer) Sign(pairs []Pair) string {
	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(SigningString(pairs)))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedQuery returns the redirect query string: the canonical pairs followed
// by the signature parameter. Callers append it to the gateway base URL.
func (s *Signer) SignedQuery(params map[string]string) string {
	pairs := Canonicalize(withoutSignature(params))
	signature := s.Sign(pairs)

	var b strings.Builder
	b.WriteString(SigningString(pairs))
	if b.Len() > 0 {
		b.WriteByte('&')
	}
	b.WriteString(SecureHashField)
	b.WriteByte('=')
	b.WriteString(signature)
	return b.String()
}

// Verify recomputes the digest over params with the signature fields removed
// and compares it to signature. Hex case is ignored.
func (s *Signer) Verify(params map[string]string, signature string) bool {
	received, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(signature)))
	if err != nil || len(received) == 0 {
		return false
	}

	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(SigningString(Canonicalize(withoutSignature(params)))))
	return hmac.Equal(mac.Sum(nil), received)
}

// Params flattens decoded query values, keeping the first value of each key.
func Params(values url.Values) map[string]string {
	params := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		params[key] = vals[0]
	}
	return params
}

func withoutSignature(params map[string]string) map[string]string {
	filtered := make(map[string]string, len(params))
	for key, value := range params {
		if key == SecureHashField || key == SecureHashTypeField {
			continue
		}
		filtered[key] = value
	}
	return filtered
}

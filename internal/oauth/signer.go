// Package oauth signs and sends OAuth1 (HMAC-SHA1) requests on behalf of a
// consumer and, once the handshake is done, a user.
package oauth

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
)

const (
	signatureMethod = "HMAC-SHA1"
	oauthVersion    = "1.0"
)

// Credential is a key/secret pair: the consumer, a temporary request token,
// or a user's access token.
type Credential struct {
	Key    string
	Secret string
}

// Params maps parameter names to values. Control and payload parameters share
// one set when signing.
type Params map[string]string

// Noncer returns a fresh oauth_nonce per request. oauth1.HexNoncer is the
// default.
type Noncer interface {
	Nonce() string
}

// Signer computes oauth_* parameters for a request.
type Signer struct {
	Consumer Credential
	Noncer   Noncer
	Now      func() time.Time
}

// NewSigner returns a Signer with a random nonce source and the wall clock.
func NewSigner(consumer Credential) *Signer {
	return &Signer{Consumer: consumer, Noncer: oauth1.HexNoncer{}, Now: time.Now}
}

// Sign returns the oauth_* parameters, oauth_signature included, for a request
// to rawURL. Query parameters of rawURL and payload are covered by the
// signature. token is nil until a request token exists.
func (s *Signer) Sign(method, rawURL string, token *Credential, payload Params) (Params, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", rawURL, err)
	}

	oauthParams := s.controlParams(token)

	all := make(Params, len(oauthParams)+len(payload))
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			all[k] = vs[0]
		}
	}
	for k, v := range payload {
		all[k] = v
	}
	for k, v := range oauthParams {
		all[k] = v
	}

	base := BaseString(method, baseURL(u), all)
	tokenSecret := ""
	if token != nil {
		tokenSecret = token.Secret
	}
	sig, err := s.signature(base, tokenSecret)
	if err != nil {
		return nil, err
	}
	oauthParams["oauth_signature"] = sig
	return oauthParams, nil
}

func (s *Signer) controlParams(token *Credential) Params {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	var noncer Noncer = oauth1.HexNoncer{}
	if s.Noncer != nil {
		noncer = s.Noncer
	}

	p := Params{
		"oauth_consumer_key":     s.Consumer.Key,
		"oauth_nonce":            noncer.Nonce(),
		"oauth_signature_method": signatureMethod,
		"oauth_timestamp":        strconv.FormatInt(now().Unix(), 10),
		"oauth_version":          oauthVersion,
	}
	if token != nil && token.Key != "" {
		p["oauth_token"] = token.Key
	}
	return p
}

// signing key is enc(consumer secret)&enc(token secret); oauth1.HMACSigner
// joins the two halves as given.
func (s *Signer) signature(base, tokenSecret string) (string, error) {
	hs := &oauth1.HMACSigner{ConsumerSecret: oauth1.PercentEncode(s.Consumer.Secret)}
	sig, err := hs.Sign(oauth1.PercentEncode(tokenSecret), base)
	if err != nil {
		return "", fmt.Errorf("hmac sign: %w", err)
	}
	return sig, nil
}

// BaseString builds METHOD&enc(baseURL)&enc(sorted parameter string).
func BaseString(method, baseURL string, params Params) string {
	return strings.ToUpper(method) + "&" + oauth1.PercentEncode(baseURL) + "&" + oauth1.PercentEncode(Encode(params))
}

// Encode percent-encodes every key and value and joins them as k=v pairs,
// sorted byte-wise by encoded key.
func Encode(params Params) string {
	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(params))
	for k, v := range params {
		pairs = append(pairs, pair{oauth1.PercentEncode(k), oauth1.PercentEncode(v)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.k)
		b.WriteByte('=')
		b.WriteString(p.v)
	}
	return b.String()
}

func baseURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// AuthorizationHeader renders oauth_* parameters as an Authorization value.
func AuthorizationHeader(oauthParams Params) string {
	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, oauth1.PercentEncode(k), oauth1.PercentEncode(oauthParams[k])))
	}
	return "OAuth " + strings.Join(parts, ", ")
}

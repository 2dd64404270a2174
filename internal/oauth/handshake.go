package oauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/mikequentel/memerelay/internal/errs"
)

// ParseQuery splits a form-encoded token response on '&' and each segment on
// its first '='. A segment without '=' is an error, not a skipped pair.
func ParseQuery(body string) (map[string]string, error) {
	out := make(map[string]string)
	for _, seg := range strings.Split(body, "&") {
		k, v, ok := strings.Cut(seg, "=")
		if !ok {
			return nil, fmt.Errorf("segment %q has no '='", seg)
		}
		out[k] = v
	}
	return out, nil
}

// tokenFromBody extracts oauth_token/oauth_token_secret.
func tokenFromBody(op string, body []byte) (Credential, error) {
	params, err := ParseQuery(string(body))
	if err != nil {
		return Credential{}, &errs.DecodeError{Op: op, Err: err}
	}
	key, ok := params["oauth_token"]
	if !ok {
		return Credential{}, &errs.DecodeError{Op: op, Err: fmt.Errorf("oauth_token missing")}
	}
	secret, ok := params["oauth_token_secret"]
	if !ok {
		return Credential{}, &errs.DecodeError{Op: op, Err: fmt.Errorf("oauth_token_secret missing")}
	}
	return Credential{Key: key, Secret: secret}, nil
}

// RequestToken GETs a temporary request credential, signed by the consumer
// alone. callback is sent as oauth_callback when non-empty ("oob" for PIN flow).
func (c *Client) RequestToken(ctx context.Context, endpoint, callback string) (Credential, error) {
	var params Params
	if callback != "" {
		params = Params{"oauth_callback": callback}
	}
	body, err := c.Get(ctx, endpoint, nil, params)
	if err != nil {
		return Credential{}, fmt.Errorf("request token: %w", err)
	}
	return tokenFromBody("request token", body)
}

// AccessToken trades an authorized request credential and verifier PIN for
// the user's access credential.
func (c *Client) AccessToken(ctx context.Context, endpoint string, request Credential, verifier string) (Credential, error) {
	body, err := c.Post(ctx, endpoint, &request, Params{"oauth_verifier": verifier})
	if err != nil {
		return Credential{}, fmt.Errorf("access token: %w", err)
	}
	return tokenFromBody("access token", body)
}

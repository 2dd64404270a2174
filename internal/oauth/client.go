package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mikequentel/memerelay/internal/errs"
)

// Diagnoser turns a non-2xx body into a short human message.
type Diagnoser func(status int, body []byte) string

// Client sends signed requests and hands back raw response bodies.
type Client struct {
	signer   *Signer
	http     *http.Client
	diagnose Diagnoser
}

// NewClient builds a Client for the consumer credential. A nil httpClient
// means http.DefaultClient.
func NewClient(consumer Credential, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{signer: NewSigner(consumer), http: httpClient}
}

// WithSigner replaces the signer; tests use it to pin nonce and clock.
func (c *Client) WithSigner(s *Signer) *Client {
	c.signer = s
	return c
}

// WithDiagnoser sets how ProtocolError.Detail is derived.
func (c *Client) WithDiagnoser(d Diagnoser) *Client {
	c.diagnose = d
	return c
}

// Get sends params as the query string.
func (c *Client) Get(ctx context.Context, rawURL string, token *Credential, params Params) ([]byte, error) {
	target := rawURL
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		target = rawURL + sep + Encode(params)
	}

	oauthParams, err := c.signer.Sign(http.MethodGet, target, token, nil)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build GET %s: %w", rawURL, err)
	}
	req.Header.Set("Authorization", AuthorizationHeader(oauthParams))
	return c.do(req)
}

// Post sends params as an application/x-www-form-urlencoded body.
func (c *Client) Post(ctx context.Context, rawURL string, token *Credential, params Params) ([]byte, error) {
	oauthParams, err := c.signer.Sign(http.MethodPost, rawURL, token, params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(Encode(params)))
	if err != nil {
		return nil, fmt.Errorf("build POST %s: %w", rawURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", AuthorizationHeader(oauthParams))
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	op := req.Method + " " + opPath(req.URL)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &errs.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		pe := &errs.ProtocolError{Op: op, StatusCode: resp.StatusCode, Body: body}
		if c.diagnose != nil {
			pe.Detail = c.diagnose(resp.StatusCode, body)
		}
		return nil, pe
	}
	return body, nil
}

func opPath(u *url.URL) string {
	if u.Path == "" {
		return u.Host
	}
	return u.Path
}

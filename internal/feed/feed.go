// Package feed fetches memes from the public feed API and downloads the
// media they point at.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dghubble/sling"

	"github.com/mikequentel/memerelay/internal/errs"
	"github.com/mikequentel/memerelay/internal/model"
)

const (
	DefaultBaseURL   = "https://meme-api.com/gimme/"
	defaultUserAgent = "memerelay/0.1"
)

// Client talks to the feed API and to arbitrary media origins.
type Client struct {
	sling *sling.Sling
}

// NewClient builds a Client rooted at baseURL. A nil httpClient means
// http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	s := sling.New().
		Client(httpClient).
		Base(baseURL).
		Set("User-Agent", defaultUserAgent).
		ResponseDecoder(bodyDecoder{})
	return &Client{sling: s}
}

// FetchItem GETs <base>/<category>. A 401 surfaces as an Unauthorized
// ProtocolError, any other non-2xx as Unexpected, and a 2xx body that is not a
// usable meme as a DecodeError.
func (c *Client) FetchItem(ctx context.Context, category string) (model.Meme, error) {
	op := "GET feed/" + category

	req, err := c.sling.New().
		Set("Accept", "application/json").
		Set("Content-Type", "application/json").
		Get(url.PathEscape(category)).
		Request()
	if err != nil {
		return model.Meme{}, fmt.Errorf("build feed request: %w", err)
	}

	var (
		meme    model.Meme
		failure []byte
	)
	resp, err := c.sling.Do(req.WithContext(ctx), &meme, &failure)
	if resp == nil {
		return model.Meme{}, &errs.TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Meme{}, &errs.ProtocolError{Op: op, StatusCode: resp.StatusCode, Body: failure}
	}
	if err != nil {
		return model.Meme{}, &errs.DecodeError{Op: op, Err: err}
	}
	if meme.URL == "" {
		return model.Meme{}, &errs.DecodeError{Op: op, Err: errors.New("missing url")}
	}
	return meme, nil
}

// fetchRaw GETs rawURL and returns the body and its Content-Type.
func (c *Client) fetchRaw(ctx context.Context, rawURL string) ([]byte, string, error) {
	op := "GET " + rawURL

	if u, err := url.Parse(rawURL); err != nil || !u.IsAbs() {
		return nil, "", &errs.DecodeError{Op: op, Err: fmt.Errorf("not an absolute url: %q", rawURL)}
	}
	req, err := c.sling.New().Get(rawURL).Request()
	if err != nil {
		return nil, "", &errs.DecodeError{Op: op, Err: err}
	}

	var body []byte
	resp, err := c.sling.Do(req.WithContext(ctx), &body, &body)
	if resp == nil {
		return nil, "", &errs.TransportError{Op: op, Err: err}
	}
	if err != nil {
		return nil, "", &errs.TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &errs.ProtocolError{Op: op, StatusCode: resp.StatusCode, Body: body}
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// bodyDecoder hands *[]byte targets the raw body and JSON-decodes the rest.
type bodyDecoder struct{}

func (bodyDecoder) Decode(resp *http.Response, v interface{}) error {
	if raw, ok := v.(*[]byte); ok {
		b, err := io.ReadAll(resp.Body)
		*raw = b
		return err
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// Package twitter binds the OAuth client to the platform's v1.1 endpoints:
// the PIN handshake, media upload, status update and home timeline.
package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	gotwitter "github.com/dghubble/go-twitter/twitter"
	"github.com/dghubble/oauth1"

	"github.com/mikequentel/memerelay/internal/errs"
	"github.com/mikequentel/memerelay/internal/model"
	"github.com/mikequentel/memerelay/internal/oauth"
)

// Endpoints are the URLs the bindings call. The home timeline is read through
// go-twitter, which carries its own base URL.
type Endpoints struct {
	RequestToken string
	Authorize    string
	AccessToken  string
	UploadMedia  string
	UpdateStatus string
}

// DefaultEndpoints returns the production URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		RequestToken: "https://api.twitter.com/oauth/request_token",
		Authorize:    "https://api.twitter.com/oauth/authorize",
		AccessToken:  "https://api.twitter.com/oauth/access_token",
		UploadMedia:  "https://upload.twitter.com/1.1/media/upload.json",
		UpdateStatus: "https://api.twitter.com/1.1/statuses/update.json",
	}
}

// Client is a thin typed wrapper over oauth.Client.
type Client struct {
	oauth     *oauth.Client
	consumer  oauth.Credential
	http      *http.Client
	endpoints Endpoints
}

// NewClient builds bindings for the consumer credential. A nil httpClient
// means http.DefaultClient.
func NewClient(consumer oauth.Credential, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		oauth:     oauth.NewClient(consumer, httpClient).WithDiagnoser(Diagnose),
		consumer:  consumer,
		http:      httpClient,
		endpoints: DefaultEndpoints(),
	}
}

// WithEndpoints overrides the endpoint URLs.
func (c *Client) WithEndpoints(e Endpoints) *Client {
	c.endpoints = e
	return c
}

// RequestToken starts the out-of-band PIN handshake.
func (c *Client) RequestToken(ctx context.Context) (oauth.Credential, error) {
	return c.oauth.RequestToken(ctx, c.endpoints.RequestToken, "oob")
}

// AuthorizeURL is where the user approves the request token and reads the PIN.
func (c *Client) AuthorizeURL(request oauth.Credential) string {
	return c.endpoints.Authorize + "?oauth_token=" + url.QueryEscape(request.Key)
}

// AccessToken completes the handshake with the user's PIN.
func (c *Client) AccessToken(ctx context.Context, request oauth.Credential, pin string) (oauth.Credential, error) {
	return c.oauth.AccessToken(ctx, c.endpoints.AccessToken, request, pin)
}

// UploadMedia posts base64-encoded media and returns its handle.
func (c *Client) UploadMedia(ctx context.Context, access oauth.Credential, base64Media string) (model.Media, error) {
	body, err := c.oauth.Post(ctx, c.endpoints.UploadMedia, &access, oauth.Params{"media": base64Media})
	if err != nil {
		return model.Media{}, fmt.Errorf("upload media: %w", err)
	}

	var m model.Media
	if err := json.Unmarshal(body, &m); err != nil {
		return model.Media{}, &errs.DecodeError{Op: "upload media", Err: err}
	}
	if m.MediaIDString == "" {
		if m.MediaID == 0 {
			return model.Media{}, &errs.DecodeError{Op: "upload media", Err: errors.New("missing media_id in response")}
		}
		m.MediaIDString = strconv.FormatUint(m.MediaID, 10)
	}
	return m, nil
}

// PostStatus publishes text with an already uploaded media id. The response
// body is not inspected.
func (c *Client) PostStatus(ctx context.Context, access oauth.Credential, text, mediaID string) error {
	params := oauth.Params{"status": text}
	if mediaID != "" {
		params["media_ids"] = mediaID
	}
	if _, err := c.oauth.Post(ctx, c.endpoints.UpdateStatus, &access, params); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// ReadTimeline returns up to count posts from the user's home timeline.
func (c *Client) ReadTimeline(ctx context.Context, access oauth.Credential, count int) ([]model.Tweet, error) {
	const op = "GET statuses/home_timeline"

	// oauth1 takes its base transport from the context; the timeout is ours to keep
	config := oauth1.NewConfig(c.consumer.Key, c.consumer.Secret)
	hc := config.Client(context.WithValue(ctx, oauth1.HTTPClient, c.http), oauth1.NewToken(access.Key, access.Secret))
	hc.Timeout = c.http.Timeout
	client := gotwitter.NewClient(hc)

	tweets, resp, err := client.Timelines.HomeTimeline(&gotwitter.HomeTimelineParams{Count: count})
	if resp == nil {
		if err == nil {
			err = errors.New("no response")
		}
		return nil, &errs.TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		pe := &errs.ProtocolError{Op: op, StatusCode: resp.StatusCode}
		if err != nil {
			pe.Detail = err.Error()
		}
		return nil, pe
	}
	if err != nil {
		return nil, &errs.DecodeError{Op: op, Err: err}
	}

	out := make([]model.Tweet, 0, len(tweets))
	for _, t := range tweets {
		text := t.Text
		if text == "" {
			text = t.FullText
		}
		out = append(out, model.Tweet{CreatedAt: t.CreatedAt, Text: text})
	}
	return out, nil
}

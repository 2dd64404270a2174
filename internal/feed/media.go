package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mikequentel/memerelay/internal/errs"
)

// meta tags that name a page's main image, most specific first
var imageMeta = []string{
	`meta[property="og:image:secure_url"]`,
	`meta[property="og:image"]`,
	`meta[name="twitter:image"]`,
	`meta[name="twitter:image:src"]`,
}

// FetchMedia downloads the bytes behind rawURL. When the origin answers with
// an HTML page instead of media, the page's og:image (or twitter:image) is
// fetched instead; only one such hop is followed.
func (c *Client) FetchMedia(ctx context.Context, rawURL string) ([]byte, error) {
	body, contentType, err := c.fetchRaw(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !isHTML(contentType) {
		return nonEmpty(rawURL, body)
	}

	imageURL, err := pageImage(rawURL, body)
	if err != nil {
		return nil, &errs.DecodeError{Op: "GET " + rawURL, Err: err}
	}
	body, contentType, err = c.fetchRaw(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	if isHTML(contentType) {
		return nil, &errs.DecodeError{Op: "GET " + imageURL, Err: errors.New("page image is another html page")}
	}
	return nonEmpty(imageURL, body)
}

func nonEmpty(rawURL string, body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, &errs.DecodeError{Op: "GET " + rawURL, Err: errors.New("empty media body")}
	}
	return body, nil
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && (mt == "text/html" || mt == "application/xhtml+xml")
}

// pageImage finds the page's preferred image and resolves it against pageURL.
func pageImage(pageURL string, page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var found string
	for _, sel := range imageMeta {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			found = strings.TrimSpace(v)
			break
		}
	}
	if found == "" {
		return "", errors.New("html page without og:image")
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(found)
	if err != nil {
		return "", fmt.Errorf("bad image url %q: %w", found, err)
	}
	return base.ResolveReference(ref).String(), nil
}

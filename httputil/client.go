// Package httputil holds the JSON over HTTP helpers shared by the actord
// server and its CLI client.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/enverbisevac/actors/errors"
)

type Client struct {
	client *http.Client
	base   string
	header http.Header
}

// A ClientOption configures a Client.
type ClientOption interface {
	Apply(*Client)
}

// ClientOptionFunc is a function that configures a Client.
type ClientOptionFunc func(*Client)

// Apply calls f(c).
func (f ClientOptionFunc) Apply(c *Client) {
	f(c)
}

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) ClientOption {
	return ClientOptionFunc(func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	})
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return ClientOptionFunc(func(c *Client) {
		c.header.Add(key, value)
	})
}

func NewClient(uri string, options ...ClientOption) *Client {
	c := &Client{
		client: http.DefaultClient,
		base:   uri,
		header: make(http.Header),
	}

	for _, opt := range options {
		opt.Apply(c)
	}

	return c
}

// Get sends a GET request and decodes the JSON answer into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post sends in as JSON, in may be nil.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	uri, err := url.JoinPath(c.base, path)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, body)
	if err != nil {
		return err
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", ContentTypeJSON)
	if in != nil {
		req.Header.Set("Content-Type", ContentTypeJSON)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ErrorResponse is a non 2xx answer.
type ErrorResponse struct {
	errors.HttpResponse
}

func (r *ErrorResponse) Error() string {
	msg := strings.TrimSpace(r.Msg)
	if msg == "" {
		msg = http.StatusText(r.Status)
	}
	return fmt.Sprintf("status %d: %s", r.Status, msg)
}

func decodeError(resp *http.Response) error {
	e := &ErrorResponse{}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if json.Unmarshal(data, &e.HttpResponse) != nil {
		e.Msg = string(data)
	}
	e.Status = resp.StatusCode
	return e
}

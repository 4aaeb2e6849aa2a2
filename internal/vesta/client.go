// Package vesta talks to the Vesta control panel command API.
//
// Every command is a single form-encoded POST to /api/ carrying the admin
// credentials, the command name and its positional arguments. The panel
// answers with a plain-text body; the body alone decides success.
package vesta

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single command round trip.
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 10 << 20
	okBody       = "OK"
)

// Connection identifies one control panel and the admin account used against it.
type Connection struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
}

// BaseURL returns the command endpoint, e.g. https://panel.example.com:8083/api/
func (c Connection) BaseURL() string {
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/api/", scheme, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)))
}

// Options tune the HTTP transport. The zero value uses DefaultTimeout and
// skips certificate verification, since panels usually run self-signed certs.
type Options struct {
	Timeout   time.Duration
	VerifyTLS bool
}

// Caller issues one named command against a panel.
type Caller interface {
	Call(ctx context.Context, command string, args ...string) (*Response, error)
}

// Response is the outcome of a command that reached the panel.
type Response struct {
	Command string
	Body    string
	// OK is true when the body is exactly "OK", or, for v-list-user, when the
	// body decodes to a non-empty JSON object.
	OK      bool
	Listing Listing
}

// TransportError wraps failures that happen before a body was read:
// DNS, connect, TLS handshake, timeout.
type TransportError struct {
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("vesta %s: transport: %v", e.Command, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client implements Caller over HTTP. It holds no state besides the
// connection and never reuses TCP connections between commands.
type Client struct {
	conn Connection
	http *http.Client
}

// New creates a Client for conn.
func New(conn Connection, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !opts.VerifyTLS, //nolint:gosec // operator opt-in via VerifyTLS
		},
	}
	return &Client{
		conn: conn,
		http: &http.Client{Timeout: opts.Timeout, Transport: transport},
	}
}

// Call posts command with args as arg1..argN and returns the panel's answer.
// HTTP status codes are ignored; a non-nil error is always a *TransportError.
func (c *Client) Call(ctx context.Context, command string, args ...string) (*Response, error) {
	form := url.Values{}
	form.Set("user", c.conn.Username)
	form.Set("password", c.conn.Password)
	form.Set("cmd", command)
	form.Set("return_code", "yes")
	for i, arg := range args {
		form.Set("arg"+strconv.Itoa(i+1), arg)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conn.BaseURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &TransportError{Command: command, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Charset", "UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Command: command, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Command: command, Err: fmt.Errorf("read body: %w", err)}
	}
	return newResponse(command, string(body)), nil
}

func newResponse(command, body string) *Response {
	r := &Response{Command: command, Body: body}
	if command != CmdListUser {
		r.OK = body == okBody
		return r
	}
	var listing Listing
	if err := json.Unmarshal([]byte(body), &listing); err != nil || len(listing) == 0 {
		return r
	}
	r.OK = true
	r.Listing = listing
	return r
}

// Package http provides the HTTP client used to fetch remote resources.
// It handles a common cookie jar and the same user agent string for every request.

package http

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
)

// DefaultClient is the client used when none is configured
var DefaultClient = NewClient()

// UserAgent sent with each request unless SetUserAgent says otherwise
const UserAgent = "multidl/1.0 (+https://github.com/simulot/multidl)"

// Logger is the log sink of the client
type Logger interface {
	Printf(string, ...interface{})
}

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

// Error is returned by Get when the server answers with another status than 200
type Error struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("can't get %q: %s", e.URL, e.Status)
}

// Client is the classic http client with a cookie jar and a given user agent string
type Client struct {
	*http.Client
	userAgent string
	Jar       *cookiejar.Jar
	logger    Logger
}

// SetCookieJar is configuration function to provide a cookie jar to the client
func SetCookieJar(cj *cookiejar.Jar) func(c *Client) {
	return func(c *Client) {
		c.Jar = cj
		c.Client.Jar = cj
	}
}

// SetUserAgent is configuration function to give a user agent string to the client
func SetUserAgent(ua string) func(c *Client) {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// SetTransport replaces the round tripper of the client. Tests use it with httptest.New().
func SetTransport(rt http.RoundTripper) func(c *Client) {
	return func(c *Client) {
		c.Client.Transport = rt
	}
}

// SetLogger gives a logger to the client
func SetLogger(l Logger) func(c *Client) {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient create an HTTP Client and configure it with a set of config functions
func NewClient(conf ...func(c *Client)) *Client {
	c := &Client{
		Client:    &http.Client{},
		userAgent: UserAgent,
		logger:    nullLogger{},
	}

	for _, f := range conf {
		f(c)
	}
	return c
}

// UserAgent returns the user agent string sent by the client
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Response is an opened response. The caller must close Body.
type Response struct {
	StatusCode int
	Status     string
	Size       int64 // -1 when the server doesn't tell
	Body       io.ReadCloser
}

// Open issues a GET request and returns the response whatever its status.
// Only transport errors are reported as errors.
func (c *Client) Open(u string) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("can't create request for %q: %w", u, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Printf("[HTTPCLIENT] GET %s", u)
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("can't get %q: %w", u, err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Size:       resp.ContentLength,
		Body:       resp.Body,
	}, nil
}

// Get establish a GET request and return a reader with the response body.
// A status other than 200 gives an *Error.
func (c *Client) Get(u string) (io.ReadCloser, error) {
	resp, err := c.Open(u)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &Error{URL: u, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp.Body, nil
}

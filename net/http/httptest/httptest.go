// Package httptest provides a RoundTripper answering requests with local files,
// so fetches can be tested without network.
package httptest

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
)

// HTTPTest maps each requested url to a file and a status code
type HTTPTest struct {
	UrlToFilefn  func(u string) string
	StatusFn     func(u string) int
	ContentType  string
	requestCount int64

	mu       sync.Mutex
	requests []string
}

// New create a HTTPTest and configures it
func New(conf ...func(ht *HTTPTest)) *HTTPTest {
	ht := &HTTPTest{
		ContentType: "application/octet-stream",
	}
	fileDirect()(ht) // default: url is file name
	WithStatus(http.StatusOK)(ht)
	for _, fn := range conf {
		fn(ht)
	}
	return ht
}

// the url is the file name
func fileDirect() func(ht *HTTPTest) {
	return func(ht *HTTPTest) {
		ht.UrlToFilefn = func(u string) string {
			return u
		}
	}
}

// WithURLToFile set the custom function UrlToFile
func WithURLToFile(fn func(u string) string) func(ht *HTTPTest) {
	return func(ht *HTTPTest) {
		ht.UrlToFilefn = fn
	}
}

// WithConstantFile read always the same file
func WithConstantFile(s string) func(ht *HTTPTest) {
	return func(ht *HTTPTest) {
		ht.UrlToFilefn = func(string) string {
			return s
		}
	}
}

// WithStatus answers every request with the given status
func WithStatus(code int) func(ht *HTTPTest) {
	return func(ht *HTTPTest) {
		ht.StatusFn = func(string) int {
			return code
		}
	}
}

// WithStatusFn lets the status depend on the url
func WithStatusFn(fn func(u string) int) func(ht *HTTPTest) {
	return func(ht *HTTPTest) {
		ht.StatusFn = fn
	}
}

// WithContentType sets the Content-Type header of responses
func WithContentType(ct string) func(ht *HTTPTest) {
	return func(ht *HTTPTest) {
		ht.ContentType = ct
	}
}

// RoundTrip implements the file roundtripper and use the UrlToFile function
// to determine the actual file name from the given url
func (ht *HTTPTest) RoundTrip(r *http.Request) (*http.Response, error) {
	url := ""
	if r != nil && r.URL != nil {
		url = r.URL.String()
	}
	atomic.AddInt64(&ht.requestCount, 1)
	ht.mu.Lock()
	ht.requests = append(ht.requests, url)
	ht.mu.Unlock()

	f, err := os.Open(ht.UrlToFilefn(url))
	if err != nil {
		return nil, fmt.Errorf("FileTransport.RoundTrip: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("FileTransport.RoundTrip: %w", err)
	}

	code := ht.StatusFn(url)
	header := make(http.Header)
	header.Add("Content-Type", ht.ContentType)
	resp := &http.Response{
		Status:        fmt.Sprintf("%d %s", code, http.StatusText(code)),
		StatusCode:    code,
		Proto:         "HTTP/1.0",
		ProtoMajor:    1,
		ProtoMinor:    0,
		Body:          f,
		ContentLength: fi.Size(),
		Close:         true,
		Request:       r,
		Header:        header,
	}

	return resp, nil
}

// RequestCount returns the number of requests seen so far
func (ht *HTTPTest) RequestCount() int {
	return int(atomic.LoadInt64(&ht.requestCount))
}

// Requests returns the urls requested so far
func (ht *HTTPTest) Requests() []string {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	r := make([]string, len(ht.requests))
	copy(r, ht.requests)
	return r
}

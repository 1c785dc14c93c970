// Package harvest builds a task set out of the links of an index page.
// It wraps colly and lets it use the same user agent and cookie jar as the
// downloads.
package harvest

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/gocolly/colly"
	"github.com/gocolly/colly/debug"

	mhttp "github.com/simulot/multidl/net/http"
	"github.com/simulot/multidl/task"
)

// DefaultSelector picks every link of the page
const DefaultSelector = "a[href]"

// Logger is the log sink of the harvester
type Logger interface {
	Printf(string, ...interface{})
}

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

// Harvester collects links
type Harvester struct {
	jar          *cookiejar.Jar
	roundTripper http.RoundTripper
	userAgent    string
	debugger     debug.Debugger
	selector     string
	pattern      string
	logger       Logger
}

func SetCookieJar(jar *cookiejar.Jar) func(h *Harvester) {
	return func(h *Harvester) {
		h.jar = jar
	}
}

func SetUserAgent(userAgent string) func(h *Harvester) {
	return func(h *Harvester) {
		h.userAgent = userAgent
	}
}

func SetTransport(rt http.RoundTripper) func(h *Harvester) {
	return func(h *Harvester) {
		h.roundTripper = rt
	}
}

func SetDebugger(d debug.Debugger) func(h *Harvester) {
	return func(h *Harvester) {
		h.debugger = d
	}
}

// SetSelector changes the css selector of link elements. They must have a href attribute.
func SetSelector(s string) func(h *Harvester) {
	return func(h *Harvester) {
		h.selector = s
	}
}

// SetPattern keeps only links whose file name or whole url match the glob pattern
func SetPattern(p string) func(h *Harvester) {
	return func(h *Harvester) {
		h.pattern = p
	}
}

func SetLogger(l Logger) func(h *Harvester) {
	return func(h *Harvester) {
		h.logger = l
	}
}

// New creates a Harvester. By default it shares the jar and user agent of mhttp.DefaultClient.
func New(conf ...func(h *Harvester)) *Harvester {
	h := &Harvester{
		jar:       mhttp.DefaultClient.Jar,
		userAgent: mhttp.DefaultClient.UserAgent(),
		selector:  DefaultSelector,
		logger:    nullLogger{},
	}
	for _, fn := range conf {
		fn(h)
	}
	return h
}

func (h *Harvester) collector() *colly.Collector {
	c := colly.NewCollector()
	if h.debugger != nil {
		c.SetDebugger(h.debugger)
	}
	if len(h.userAgent) > 0 {
		c.UserAgent = h.userAgent
	}
	if h.jar != nil {
		c.SetCookieJar(h.jar)
	}
	if h.roundTripper != nil {
		c.WithTransport(h.roundTripper)
	}
	return c
}

// Harvest visits indexURL and returns a task for each link to a file.
// Files are written in destDir under the name they have in the url.
// Links to the same url or to the same file name are only kept once.
func (h *Harvester) Harvest(indexURL, destDir string) (task.TaskSet, error) {
	var (
		g   glob.Glob
		err error
	)
	if h.pattern != "" {
		g, err = glob.Compile(h.pattern)
		if err != nil {
			return task.TaskSet{}, fmt.Errorf("invalid pattern %q: %w", h.pattern, err)
		}
	}

	var sources, destinations []string
	seenURL := map[string]bool{}
	seenName := map[string]string{}

	c := h.collector()
	c.OnHTML(h.selector, func(e *colly.HTMLElement) {
		u := e.Request.AbsoluteURL(e.Attr("href"))
		if u == "" || seenURL[u] {
			return
		}
		seenURL[u] = true
		name := mhttp.FileName(u)
		if name == "" {
			return
		}
		if g != nil && !g.Match(name) && !g.Match(u) {
			return
		}
		if other, ok := seenName[name]; ok {
			h.logger.Printf("Link %q ignored, %q has the same file name", u, other)
			return
		}
		seenName[name] = u
		sources = append(sources, u)
		destinations = append(destinations, filepath.Join(destDir, name))
	})

	h.logger.Printf("Harvesting %q", indexURL)
	if err = c.Visit(indexURL); err != nil {
		return task.TaskSet{}, fmt.Errorf("can't harvest %q: %w", indexURL, err)
	}
	h.logger.Printf("%d links found on %q", len(sources), indexURL)
	return task.NewTaskSet(sources, destinations)
}

// Package manifest reads task sets from a text manifest.
//
// Each entry pairs a source url with a destination, separated by an arrow.
// Values may be quoted with double quotes when they contain spaces.
// A destination ending with a slash is a directory, the file name is taken
// from the url. Relative destinations are relative to the base directory.
// Everything after a # is a comment. In a manifest loaded from a url,
// relative sources are relative to that url.
//
//	# images
//	https://example.com/logo.svg -> logo.svg
//	"https://example.com/a b.png" -> "/tmp/a b.png"
//	https://example.com/archive.tgz -> downloads/
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/participle"
	"github.com/alecthomas/participle/lexer"

	mhttp "github.com/simulot/multidl/net/http"
	"github.com/simulot/multidl/task"
)

// ErrNoFileName is returned when a directory destination is given for a url without file name
var ErrNoFileName = errors.New("manifest: can't get a file name from the url")

// Manifest is a list of entries
type Manifest struct {
	Entries []*Entry `parser:"{ @@ }"`
}

// Entry is one source and its destination
type Entry struct {
	Source      string `parser:"@(String | Word)"`
	Destination string `parser:"\"->\" @(String | Word)"`
}

// Unnamed groups are skipped: spaces and comments
const manifestLexer = `(\s+)|(#[^\n]*)|(?P<String>"[^"\\]*(?:\\.[^"\\]*)*")|(?P<Arrow>->)|(?P<Word>[^\s"#]+)`

var (
	lex    = lexer.Must(lexer.Regexp(manifestLexer))
	parser = participle.MustBuild(
		&Manifest{},
		participle.Lexer(lex),
		participle.Unquote("String"),
		participle.UseLookahead(2),
	)
)

// Parser turns manifests into task sets
type Parser struct {
	client  *mhttp.Client
	baseDir string
}

// WithClient sets the client used to load manifests from urls
func WithClient(c *mhttp.Client) func(p *Parser) {
	return func(p *Parser) {
		p.client = c
	}
}

// WithBaseDir sets the directory of relative destinations
func WithBaseDir(d string) func(p *Parser) {
	return func(p *Parser) {
		p.baseDir = d
	}
}

// New creates a Parser and configures it
func New(conf ...func(p *Parser)) *Parser {
	p := &Parser{
		client: mhttp.DefaultClient,
	}
	for _, fn := range conf {
		fn(p)
	}
	return p
}

// Parse reads a manifest with the default parser
func Parse(r io.Reader) (task.TaskSet, error) {
	return New().Parse(r)
}

// ParseFile reads a manifest file. Relative destinations are relative to the working directory.
func ParseFile(name string) (task.TaskSet, error) {
	return New().Load(name)
}

// Parse reads the manifest from r
func (p *Parser) Parse(r io.Reader) (task.TaskSet, error) {
	return p.parse(r, "")
}

// parse reads the manifest from r. When base is given, relative sources are
// resolved against it.
func (p *Parser) parse(r io.Reader, base string) (task.TaskSet, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return task.TaskSet{}, fmt.Errorf("can't read manifest: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return task.FromTasks(), nil
	}
	m := &Manifest{}
	if err = parser.ParseBytes(b, m); err != nil {
		return task.TaskSet{}, fmt.Errorf("can't parse manifest: %w", err)
	}

	sources := make([]string, 0, len(m.Entries))
	destinations := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		src := e.Source
		if base != "" {
			src = mhttp.Rel(base, src)
		}
		d, err := p.destination(e, src)
		if err != nil {
			return task.TaskSet{}, err
		}
		sources = append(sources, src)
		destinations = append(destinations, d)
	}
	return task.NewTaskSet(sources, destinations)
}

func (p *Parser) destination(e *Entry, source string) (string, error) {
	d := e.Destination
	if strings.HasSuffix(d, "/") {
		name := mhttp.FileName(source)
		if name == "" {
			return "", fmt.Errorf("%w: %q", ErrNoFileName, source)
		}
		d = filepath.Join(d, name)
	}
	if !filepath.IsAbs(d) && p.baseDir != "" {
		d = filepath.Join(p.baseDir, d)
	}
	return filepath.Clean(d), nil
}

// Load reads the manifest from a local file or from a http(s) url
func (p *Parser) Load(src string) (task.TaskSet, error) {
	var (
		r    io.ReadCloser
		base string
		err  error
	)
	l := strings.ToLower(src)
	if strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") {
		base = src
		r, err = p.client.Get(src)
	} else {
		r, err = os.Open(src)
	}
	if err != nil {
		return task.TaskSet{}, fmt.Errorf("can't load manifest: %w", err)
	}
	defer r.Close()
	return p.parse(r, base)
}

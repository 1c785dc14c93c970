package main

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/simulot/multidl/dispatch"
	ftest "github.com/simulot/multidl/net/http/httptest"
)

func TestParseCommandLine(t *testing.T) {
	os.Setenv("MULTIDL_TEST_DIR", "/tmp/mdl")
	defer os.Unsetenv("MULTIDL_TEST_DIR")

	t.Run("defaults", func(t *testing.T) {
		c, args, err := parseCommandLine([]string{"http://a/x"})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(defaultConfig(), c); diff != "" {
			t.Errorf("Config mismatch (-want +got):\n%s", diff)
		}
		if len(args) != 1 || args[0] != "http://a/x" {
			t.Errorf("Unexpected args %v", args)
		}
	})

	t.Run("flags", func(t *testing.T) {
		c, _, err := parseCommandLine([]string{"-strategy", "unbounded", "-headless", "-glob", "*.iso"})
		if err != nil {
			t.Fatal(err)
		}
		if c.Strategy != "unbounded" || !c.Headless || c.Pattern != "*.iso" {
			t.Errorf("Flags not applied: %+v", c)
		}
	})

	t.Run("config file and flag override", func(t *testing.T) {
		c, _, err := parseCommandLine([]string{"-config", "testdata/config.json", "-workers", "5"})
		if err != nil {
			t.Fatal(err)
		}
		want := defaultConfig()
		want.Strategy = "parallel"
		want.Workers = 5
		want.Destination = "/tmp/mdl/downloads"
		want.LogLevel = "ERROR"
		want.Headless = true
		want.Tasks = []TaskConfig{{URL: "http://example.com/a.bin", Destination: "/tmp/mdl/a.bin"}}
		if diff := cmp.Diff(want, c); diff != "" {
			t.Errorf("Config mismatch (-want +got):\n%s", diff)
		}
		dc, err := c.DispatchConfig()
		if err != nil {
			t.Fatal(err)
		}
		if dc != dispatch.DataParallelConfig(5) {
			t.Errorf("Unexpected dispatch config %s", dc)
		}
	})

	t.Run("bad strategy", func(t *testing.T) {
		if _, _, err := parseCommandLine([]string{"-strategy", "rayon"}); err == nil {
			t.Errorf("Expecting an error")
		}
	})

	t.Run("queue without worker", func(t *testing.T) {
		if _, _, err := parseCommandLine([]string{"-workers", "0"}); err == nil {
			t.Errorf("Expecting an error")
		}
	})

	t.Run("write config", func(t *testing.T) {
		name := filepath.Join(t.TempDir(), "out.json")
		c, _, err := parseCommandLine([]string{"-strategy", "parallel", "-write-config", name})
		if err != nil {
			t.Fatal(err)
		}
		read := defaultConfig()
		if err = ReadConfig(name, read); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(c, read); diff != "" {
			t.Errorf("Written config differs (-want +got):\n%s", diff)
		}
	})
}

func newTestApp(t *testing.T, c *Config, rt http.RoundTripper) (*app, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	a := &app{stdout: out, stderr: ioutil.Discard, transport: rt}
	if err := a.Initialize(c); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Close)
	return a, out
}

func TestRun(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing.bin") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("payload of " + r.URL.Path))
	}))
	defer ts.Close()

	for _, strategy := range []string{"unbounded", "queue", "parallel"} {
		t.Run(strategy, func(t *testing.T) {
			dir := t.TempDir()
			manifestName := filepath.Join(dir, "manifest.txt")
			err := ioutil.WriteFile(manifestName, []byte(ts.URL+"/m.bin -> m.bin\n"+ts.URL+"/missing.bin -> sub/\n"), 0644)
			if err != nil {
				t.Fatal(err)
			}
			os.Mkdir(filepath.Join(dir, "sub"), 0755)

			c := defaultConfig()
			c.Strategy = strategy
			c.Workers = 2
			c.Capacity = 1
			c.Headless = true
			c.Metrics = true
			c.LogLevel = "ERROR"
			c.LogFile = filepath.Join(dir, "multidl.log")
			c.Destination = dir
			c.Manifest = manifestName
			c.Tasks = []TaskConfig{{URL: ts.URL + "/c.bin", Destination: filepath.Join(dir, "c.bin")}}

			a, out := newTestApp(t, c, nil)
			code := a.Run([]string{ts.URL + "/arg.bin", ts.URL + "/x?id=1 => " + filepath.Join(dir, "x.bin")})
			if code != 1 {
				t.Errorf("Expecting exit code 1 with a failed task, got %d", code)
			}
			if !strings.Contains(out.String(), "4 completed, 0 skipped, 1 failed") {
				t.Errorf("Unexpected report:\n%s", out.String())
			}
			if !strings.Contains(out.String(), "multidl.completed") {
				t.Errorf("Expecting metrics in the report:\n%s", out.String())
			}
			for _, name := range []string{"c.bin", "arg.bin", "x.bin", "m.bin", "sub/missing.bin"} {
				if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
					t.Errorf("Expecting %s on disk: %s", name, err)
				}
			}
			b, _ := ioutil.ReadFile(filepath.Join(dir, "arg.bin"))
			if string(b) != "payload of /arg.bin" {
				t.Errorf("Unexpected content %q", b)
			}

			a, out = newTestApp(t, c, nil)
			if code = a.Run([]string{ts.URL + "/arg.bin", ts.URL + "/x?id=1 => " + filepath.Join(dir, "x.bin")}); code != 0 {
				t.Errorf("Second run: expecting everything skipped and exit code 0, got %d", code)
			}
			if !strings.Contains(out.String(), "0 completed, 5 skipped, 0 failed") {
				t.Errorf("Unexpected report:\n%s", out.String())
			}
		})
	}
}

func TestRunIndex(t *testing.T) {
	dir := t.TempDir()
	ht := ftest.New(ftest.WithConstantFile("testdata/index.html"), ftest.WithContentType("text/html"))

	c := defaultConfig()
	c.Headless = true
	c.LogLevel = "FATAL"
	c.Destination = dir
	c.Index = "http://example.com/pub/"
	c.Pattern = "*.txt"
	c.Debug = true

	a, out := newTestApp(t, c, ht)
	if code := a.Run(nil); code != 0 {
		t.Fatalf("Expecting exit code 0, got %d\n%s", code, out.String())
	}
	for _, name := range []string{"one.txt", "two.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expecting %s on disk: %s", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "skip.html")); err == nil {
		t.Errorf("skip.html doesn't match the pattern")
	}
	if ht.RequestCount() != 3 {
		t.Errorf("Expecting 3 requests, got %d", ht.RequestCount())
	}
}

func TestRunNothing(t *testing.T) {
	c := defaultConfig()
	c.Headless = true
	c.LogLevel = "ERROR"
	a, _ := newTestApp(t, c, nil)
	if code := a.Run(nil); code != 0 {
		t.Errorf("Expecting exit code 0, got %d", code)
	}
}

func TestRunWithProgress(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 64*1024))
	}))
	defer ts.Close()

	dir := t.TempDir()
	c := defaultConfig()
	c.LogLevel = "ERROR"
	c.Destination = dir
	a, _ := newTestApp(t, c, nil)
	if code := a.Run([]string{ts.URL + "/1.bin", ts.URL + "/2.bin", ts.URL + "/3.bin"}); code != 0 {
		t.Errorf("Expecting exit code 0, got %d", code)
	}
}

func TestBadArgument(t *testing.T) {
	c := defaultConfig()
	c.Headless = true
	c.LogLevel = "FATAL"
	a, _ := newTestApp(t, c, nil)
	if code := a.Run([]string{"http://example.com/"}); code != 1 {
		t.Errorf("Expecting exit code 1 for a url without file name, got %d", code)
	}
}

func TestRunIndexSharesCookies(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pub/" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "42", Path: "/"})
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body><a href="one.txt">one</a></body></html>`))
			return
		}
		if c, err := r.Cookie("session"); err != nil || c.Value != "42" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("one"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	c := defaultConfig()
	c.Headless = true
	c.Debug = true
	c.LogLevel = "FATAL"
	c.Destination = dir
	c.Index = ts.URL + "/pub/"

	a, out := newTestApp(t, c, nil)
	if code := a.Run(nil); code != 0 {
		t.Fatalf("Expecting exit code 0, got %d\n%s", code, out.String())
	}
	b, err := ioutil.ReadFile(filepath.Join(dir, "one.txt"))
	if err != nil || string(b) != "one" {
		t.Errorf("Expecting one.txt downloaded with the session cookie, got %q, %v", b, err)
	}
}

func TestRunInvalidDispatchConfig(t *testing.T) {
	c := defaultConfig()
	c.Headless = true
	c.LogLevel = "FATAL"
	c.Destination = t.TempDir()
	a, _ := newTestApp(t, c, nil)
	a.Config.Strategy = "rayon"
	if code := a.Run([]string{"http://example.com/x.bin"}); code != 1 {
		t.Errorf("Expecting exit code 1 for an unknown strategy, got %d", code)
	}
	if _, err := os.Stat(filepath.Join(c.Destination, "x.bin")); err == nil {
		t.Errorf("Nothing should be downloaded")
	}
}

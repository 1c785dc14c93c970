package fetch

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	metrics "github.com/rcrowley/go-metrics"

	mhttp "github.com/simulot/multidl/net/http"
	ftest "github.com/simulot/multidl/net/http/httptest"
	"github.com/simulot/multidl/task"
)

const payload = "testdata/payload.bin"

func fileFetcher(t *testing.T, conf ...func(ht *ftest.HTTPTest)) (*Fetcher, *ftest.HTTPTest) {
	t.Helper()
	ht := ftest.New(conf...)
	return New(WithClient(mhttp.NewClient(mhttp.SetTransport(ht)))), ht
}

func sameContent(t *testing.T, got, want string) {
	t.Helper()
	g, err := os.ReadFile(got)
	if err != nil {
		t.Fatal(err)
	}
	w, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(g, w) {
		t.Errorf("Content of %q differs from %q", got, want)
	}
}

func TestFetch(t *testing.T) {
	t.Run("Completed", func(t *testing.T) {
		f, _ := fileFetcher(t, ftest.WithConstantFile(payload))
		dst := filepath.Join(t.TempDir(), "a.bin")

		o := f.Fetch(task.Task{Source: "http://example.com/a.bin", Destination: dst})
		if o.Status != task.Completed {
			t.Fatalf("Expecting completed, got %s", o)
		}
		fi, _ := os.Stat(payload)
		if o.Bytes != fi.Size() {
			t.Errorf("Expecting %d bytes, got %d", fi.Size(), o.Bytes)
		}
		sameContent(t, dst, payload)
	})

	t.Run("Idempotence", func(t *testing.T) {
		f, ht := fileFetcher(t, ftest.WithConstantFile(payload))
		dst := filepath.Join(t.TempDir(), "a.bin")
		tk := task.Task{Source: "http://example.com/a.bin", Destination: dst}

		if o := f.Fetch(tk); o.Status != task.Completed {
			t.Fatalf("First fetch: expecting completed, got %s", o)
		}
		before, _ := os.ReadFile(dst)
		o := f.Fetch(tk)
		if o.Status != task.Skipped || o.Reason != task.AlreadyExists {
			t.Fatalf("Second fetch: expecting skipped(already exists), got %s", o)
		}
		after, _ := os.ReadFile(dst)
		if !bytes.Equal(before, after) {
			t.Errorf("Destination changed by the second fetch")
		}
		if ht.RequestCount() != 1 {
			t.Errorf("Expecting 1 request, got %d", ht.RequestCount())
		}
	})

	t.Run("Bad status keeps the partial file", func(t *testing.T) {
		f, _ := fileFetcher(t, ftest.WithConstantFile("testdata/notfound.html"), ftest.WithStatus(http.StatusNotFound))
		dst := filepath.Join(t.TempDir(), "b.bin")

		o := f.Fetch(task.Task{Source: "http://example.com/b.bin", Destination: dst})
		if o.Status != task.Failed || o.Reason != task.BadStatus || o.Code != 404 {
			t.Fatalf("Expecting failed(bad status 404), got %s", o)
		}
		if !Exists(dst) {
			t.Fatalf("Expecting %q to be left on disk", dst)
		}
		sameContent(t, dst, "testdata/notfound.html")
	})

	t.Run("Transport error", func(t *testing.T) {
		f, _ := fileFetcher(t, ftest.WithConstantFile("testdata/missing"))
		dst := filepath.Join(t.TempDir(), "c.bin")

		o := f.Fetch(task.Task{Source: "http://example.com/c.bin", Destination: dst})
		if o.Status != task.Failed || o.Reason != task.IOError || o.Err == nil {
			t.Fatalf("Expecting failed(i/o error), got %s", o)
		}
		if !errors.Is(o.Err, os.ErrNotExist) {
			t.Errorf("Expecting the transport error to be wrapped, got %v", o.Err)
		}
		if !Exists(dst) {
			t.Errorf("The destination is created before the request")
		}
	})

	t.Run("Missing parent directory", func(t *testing.T) {
		f, ht := fileFetcher(t, ftest.WithConstantFile(payload))
		dst := filepath.Join(t.TempDir(), "nowhere", "d.bin")

		o := f.Fetch(task.Task{Source: "http://example.com/d.bin", Destination: dst})
		if o.Status != task.Failed || o.Reason != task.IOError {
			t.Fatalf("Expecting failed(i/o error), got %s", o)
		}
		if ht.RequestCount() != 0 {
			t.Errorf("No request expected when the destination can't be created")
		}
	})
}

func TestPackageFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("nope"))
			return
		}
		w.Write([]byte("hello world"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	a, b := filepath.Join(dir, "a"), filepath.Join(dir, "b")

	if o := Fetch(ts.URL+"/a", a); o.Status != task.Completed || o.Bytes != 11 {
		t.Errorf("Expecting completed with 11 bytes, got %s (%d bytes)", o, o.Bytes)
	}
	if o := Fetch(ts.URL+"/missing", b); o.Status != task.Failed || o.Code != 404 {
		t.Errorf("Expecting failed(bad status 404), got %s", o)
	}
	if fi, err := os.Stat(b); err != nil || fi.Size() != 4 {
		t.Errorf("Expecting the 404 body on disk, got %v %v", fi, err)
	}
	if o := Fetch(ts.URL+"/a", b); o.Status != task.Skipped {
		t.Errorf("A failed download still blocks the destination, got %s", o)
	}
}

type recordProgress struct {
	sync.Mutex
	size, count int64
	updates     int
	done        *task.Outcome
}

func (p *recordProgress) Init(size int64) { p.Lock(); p.size = size; p.Unlock() }
func (p *recordProgress) Update(count, size int64) {
	p.Lock()
	p.count = count
	p.updates++
	p.Unlock()
}
func (p *recordProgress) Done(o task.Outcome) { p.Lock(); p.done = &o; p.Unlock() }

func TestProgressAndMetrics(t *testing.T) {
	ht := ftest.New(ftest.WithConstantFile(payload))
	reg := metrics.NewRegistry()
	p := &recordProgress{}
	var logs strings.Builder
	f := New(
		WithClient(mhttp.NewClient(mhttp.SetTransport(ht))),
		WithProgress(func(task.Task) Progresser { return p }),
		WithMetrics(reg),
		WithLogger(logWriter{&logs}),
	)
	dst := filepath.Join(t.TempDir(), "a.bin")
	o := f.Fetch(task.Task{Source: "http://example.com/a.bin", Destination: dst})
	if o.Status != task.Completed {
		t.Fatalf("Expecting completed, got %s", o)
	}

	fi, _ := os.Stat(payload)
	if p.size != fi.Size() || p.count != fi.Size() || p.updates == 0 {
		t.Errorf("Unexpected progression size=%d count=%d updates=%d", p.size, p.count, p.updates)
	}
	if p.done == nil || p.done.Status != task.Completed {
		t.Errorf("Done not called with the outcome")
	}
	if c := metrics.GetOrRegisterTimer(MetricFetchTimer, reg).Count(); c != 1 {
		t.Errorf("Expecting 1 timed fetch, got %d", c)
	}
	if c := metrics.GetOrRegisterMeter(MetricBytes, reg).Count(); c != fi.Size() {
		t.Errorf("Expecting %d bytes metered, got %d", fi.Size(), c)
	}
	if !strings.Contains(logs.String(), "downloaded") {
		t.Errorf("Expecting a completion log, got %q", logs.String())
	}
}

type logWriter struct {
	b *strings.Builder
}

func (l logWriter) Printf(f string, args ...interface{}) {
	l.b.WriteString(f)
	l.b.WriteByte('\n')
}

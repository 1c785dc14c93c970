package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"

	"github.com/alecthomas/repr"
	metrics "github.com/rcrowley/go-metrics"

	"github.com/simulot/multidl/dispatch"
	"github.com/simulot/multidl/fetch"
	"github.com/simulot/multidl/mylog"
	mhttp "github.com/simulot/multidl/net/http"
	"github.com/simulot/multidl/progress"
	"github.com/simulot/multidl/results"
	"github.com/simulot/multidl/task"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	fmt.Printf("%s: %v, commit %v, built at %v\n", filepath.Base(os.Args[0]), version, commit, date)

	c, args, err := parseCommandLine(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
	a := &app{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	if err = a.Initialize(c); err != nil {
		log.Fatal(err)
	}
	code := a.Run(args)
	a.Close()
	os.Exit(code)
}

type app struct {
	Config    *Config
	logger    *mylog.MyLog
	logFile   io.Closer
	client    *mhttp.Client
	transport http.RoundTripper // replaced by tests
	registry  metrics.Registry
	stdout    io.Writer
	stderr    io.Writer
}

// Initialize sets up logger, http client and metrics
func (a *app) Initialize(c *Config) error {
	a.Config = c

	var fileLogger mylog.Logger
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("can't open log file: %w", err)
		}
		a.logFile = f
		fileLogger = log.New(f, "", log.LstdFlags)
	}
	logger, err := mylog.NewLog(c.LogLevel, log.New(a.stderr, "", log.LstdFlags), fileLogger)
	if err != nil {
		return err
	}
	a.logger = logger

	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("can't create cookie jar: %w", err)
	}
	conf := []func(c *mhttp.Client){
		mhttp.SetLogger(a.logger.Debug()),
		mhttp.SetCookieJar(jar),
	}
	if c.UserAgent != "" {
		conf = append(conf, mhttp.SetUserAgent(c.UserAgent))
	}
	if a.transport != nil {
		conf = append(conf, mhttp.SetTransport(a.transport))
	}
	a.client = mhttp.NewClient(conf...)
	a.registry = metrics.NewRegistry()
	return nil
}

// Close releases the log file
func (a *app) Close() {
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// Run downloads everything and returns the exit code:
// 0 when all tasks are completed or skipped, 1 otherwise.
func (a *app) Run(args []string) int {
	ts, err := a.collectTasks(args)
	if err != nil {
		a.logger.Error().Printf("%s", err)
		return 1
	}
	if ts.Len() == 0 {
		a.logger.Info().Printf("Nothing to download.")
		return 0
	}
	dc, err := a.Config.DispatchConfig()
	if err != nil {
		a.logger.Error().Printf("%s", err)
		return 1
	}

	fetchConf := []func(f *fetch.Fetcher){
		fetch.WithClient(a.client),
		fetch.WithLogger(a.logger.Trace()),
		fetch.WithMetrics(a.registry),
	}
	var pc *progress.Display
	if !a.Config.Headless {
		pc = progress.New(dc.String(), ts.Len(), progress.WithOutput(a.stderr))
		fetchConf = append(fetchConf, fetch.WithProgress(pc.Progresser))
	}

	d := dispatch.New(
		dispatch.WithFetcher(fetch.New(fetchConf...)),
		dispatch.WithLogger(a.logger.Info()),
		dispatch.WithMetrics(a.registry),
	)
	r, err := d.Dispatch(ts, dc)
	if pc != nil {
		pc.Wait()
	}
	if r != nil {
		a.report(ts, r)
	}
	if err != nil {
		a.logger.Error().Printf("%s", err)
		return 1
	}
	if !r.OK() {
		return 1
	}
	return 0
}

func (a *app) report(ts task.TaskSet, r *results.BatchResult) {
	c := r.Counts()
	fmt.Fprintf(a.stdout, "%d completed, %d skipped, %d failed\n", c[task.Completed], c[task.Skipped], c[task.Failed])
	for _, i := range r.Failures() {
		fmt.Fprintf(a.stdout, "  %s: %s\n", ts.At(i), r.Outcome(i))
	}
	if a.Config.Debug {
		fmt.Fprintln(a.stdout, repr.String(r.Outcomes()))
	}
	if a.Config.Metrics {
		metrics.WriteOnce(a.registry, a.stdout)
	}
}

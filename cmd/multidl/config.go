package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/simulot/multidl/dispatch"
)

// TaskConfig is one download of the configuration file
type TaskConfig struct {
	URL         string
	Destination string
}

// Config holds settings from configuration file and command line
type Config struct {
	Strategy    string       // unbounded, queue or parallel
	Capacity    int          // Queue capacity of the queue strategy
	Workers     int          // Workers of queue and parallel strategies
	Destination string       // Directory of downloads without explicit destination
	UserAgent   string       // User agent of http requests
	LogLevel    string       // FATAL, ERROR, INFO, TRACE or DEBUG
	LogFile     string       // When set, logs go to this file, only errors on console
	Headless    bool         // Progression bars are not displayed
	Debug       bool         // Dump the batch result
	Metrics     bool         // Print metrics at the end
	Manifest    string       // Manifest file or url
	Index       string       // Index page to harvest
	Pattern     string       // Glob filter of harvested links
	Selector    string       // CSS selector of harvested links
	Tasks       []TaskConfig // Downloads given in the configuration file
}

// Almost empty configuration
func defaultConfig() *Config {
	return &Config{
		Strategy:    "queue",
		Capacity:    runtime.NumCPU(),
		Workers:     runtime.NumCPU(),
		Destination: ".",
		LogLevel:    "INFO",
	}
}

// ReadConfig read the JSON configuration file over c
func ReadConfig(name string, c *Config) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("can't open configuration file: %w", err)
	}
	defer f.Close()
	d := json.NewDecoder(f)
	d.DisallowUnknownFields()
	if err = d.Decode(c); err != nil {
		return fmt.Errorf("can't decode configuration file %q: %w", name, err)
	}
	return nil
}

// WriteConfig writes the configuration as indented JSON
func WriteConfig(name string, c *Config) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("can't write configuration file: %w", err)
	}
	defer f.Close()
	e := json.NewEncoder(f)
	e.SetIndent("", "  ")
	return e.Encode(c)
}

// Check the configuration and expand paths
func (c *Config) Check() error {
	if _, err := c.DispatchConfig(); err != nil {
		return err
	}
	c.Destination = os.ExpandEnv(c.Destination)
	for i := range c.Tasks {
		c.Tasks[i].Destination = os.ExpandEnv(c.Tasks[i].Destination)
	}
	return nil
}

// DispatchConfig translates the configuration for the dispatcher
func (c *Config) DispatchConfig() (dispatch.Config, error) {
	s, err := dispatch.ParseStrategy(c.Strategy)
	if err != nil {
		return dispatch.Config{}, err
	}
	var dc dispatch.Config
	switch s {
	case dispatch.Unbounded:
		dc = dispatch.UnboundedConfig()
	case dispatch.BoundedQueue:
		dc = dispatch.BoundedQueueConfig(c.Capacity, c.Workers)
	case dispatch.DataParallel:
		dc = dispatch.DataParallelConfig(c.Workers)
	}
	return dc, dc.Validate()
}

// parseCommandLine reads the configuration file given by -config, if any,
// then applies the flags explicitly set on the command line.
func parseCommandLine(args []string) (*Config, []string, error) {
	cli := defaultConfig()
	fs := flag.NewFlagSet("multidl", flag.ContinueOnError)
	configFile := fs.String("config", "", "Configuration file name.")
	writeConfig := fs.String("write-config", "", "Write the resulting configuration in this file.")
	fs.StringVar(&cli.Strategy, "strategy", cli.Strategy, "Dispatch strategy: unbounded, queue or parallel.")
	fs.IntVar(&cli.Capacity, "capacity", cli.Capacity, "Queue capacity of the queue strategy.")
	fs.IntVar(&cli.Workers, "workers", cli.Workers, "Concurrent downloads of the queue and parallel strategies, 0 for one per CPU with parallel.")
	fs.StringVar(&cli.Destination, "dest", cli.Destination, "Destination directory of downloads given as urls only.")
	fs.StringVar(&cli.UserAgent, "user-agent", cli.UserAgent, "User agent of http requests.")
	fs.StringVar(&cli.LogLevel, "log-level", cli.LogLevel, "Log level: FATAL, ERROR, INFO, TRACE or DEBUG.")
	fs.StringVar(&cli.LogFile, "log-file", cli.LogFile, "Log file name.")
	fs.BoolVar(&cli.Headless, "headless", cli.Headless, "Headless mode. Progression bars are not displayed.")
	fs.BoolVar(&cli.Debug, "debug", cli.Debug, "Debug mode.")
	fs.BoolVar(&cli.Metrics, "metrics", cli.Metrics, "Print metrics at the end.")
	fs.StringVar(&cli.Manifest, "manifest", cli.Manifest, "Manifest file or url.")
	fs.StringVar(&cli.Index, "index", cli.Index, "Index page whose links are downloaded.")
	fs.StringVar(&cli.Pattern, "glob", cli.Pattern, "Glob filter of index links.")
	fs.StringVar(&cli.Selector, "selector", cli.Selector, "CSS selector of index links.")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	c := cli
	if *configFile != "" {
		c = defaultConfig()
		if err := ReadConfig(*configFile, c); err != nil {
			return nil, nil, err
		}
		// flags given on the command line win
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "strategy":
				c.Strategy = cli.Strategy
			case "capacity":
				c.Capacity = cli.Capacity
			case "workers":
				c.Workers = cli.Workers
			case "dest":
				c.Destination = cli.Destination
			case "user-agent":
				c.UserAgent = cli.UserAgent
			case "log-level":
				c.LogLevel = cli.LogLevel
			case "log-file":
				c.LogFile = cli.LogFile
			case "headless":
				c.Headless = cli.Headless
			case "debug":
				c.Debug = cli.Debug
			case "metrics":
				c.Metrics = cli.Metrics
			case "manifest":
				c.Manifest = cli.Manifest
			case "index":
				c.Index = cli.Index
			case "glob":
				c.Pattern = cli.Pattern
			case "selector":
				c.Selector = cli.Selector
			}
		})
	}
	if err := c.Check(); err != nil {
		return nil, nil, err
	}
	if *writeConfig != "" {
		if err := WriteConfig(*writeConfig, c); err != nil {
			return nil, nil, err
		}
	}
	return c, fs.Args(), nil
}

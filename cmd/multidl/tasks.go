package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gocolly/colly/debug"

	"github.com/simulot/multidl/harvest"
	"github.com/simulot/multidl/manifest"
	mhttp "github.com/simulot/multidl/net/http"
	"github.com/simulot/multidl/task"
)

// collectTasks gathers the tasks of the configuration file, the manifest,
// the index page and the command line arguments, in that order.
//
// An argument is either "url=>destination" or a bare url saved in the
// destination directory.
func (a *app) collectTasks(args []string) (task.TaskSet, error) {
	ts := task.FromTasks()

	var sources, destinations []string
	for _, t := range a.Config.Tasks {
		sources = append(sources, t.URL)
		destinations = append(destinations, t.Destination)
	}
	for _, arg := range args {
		u, d := arg, ""
		if i := strings.Index(arg, "=>"); i > 0 {
			u, d = strings.TrimSpace(arg[:i]), strings.TrimSpace(arg[i+2:])
		}
		if d == "" {
			name := mhttp.FileName(u)
			if name == "" {
				return task.TaskSet{}, fmt.Errorf("can't get a file name from %q, give it as url=>destination", u)
			}
			d = filepath.Join(a.Config.Destination, name)
		}
		sources = append(sources, u)
		destinations = append(destinations, d)
	}
	direct, err := task.NewTaskSet(sources, destinations)
	if err != nil {
		return task.TaskSet{}, err
	}
	ts = ts.Append(direct)

	if a.Config.Manifest != "" {
		p := manifest.New(manifest.WithClient(a.client), manifest.WithBaseDir(a.Config.Destination))
		m, err := p.Load(a.Config.Manifest)
		if err != nil {
			return task.TaskSet{}, err
		}
		a.logger.Info().Printf("%d tasks read from manifest %q", m.Len(), a.Config.Manifest)
		ts = ts.Append(m)
	}

	if a.Config.Index != "" {
		conf := []func(h *harvest.Harvester){
			harvest.SetUserAgent(a.client.UserAgent()),
			harvest.SetCookieJar(a.client.Jar),
			harvest.SetLogger(a.logger.Trace()),
		}
		if a.Config.Debug {
			conf = append(conf, harvest.SetDebugger(&debug.LogDebugger{Output: a.stderr, Prefix: "[COLLY] "}))
		}
		if a.Config.Pattern != "" {
			conf = append(conf, harvest.SetPattern(a.Config.Pattern))
		}
		if a.Config.Selector != "" {
			conf = append(conf, harvest.SetSelector(a.Config.Selector))
		}
		if a.transport != nil {
			conf = append(conf, harvest.SetTransport(a.transport))
		}
		h, err := harvest.New(conf...).Harvest(a.Config.Index, a.Config.Destination)
		if err != nil {
			return task.TaskSet{}, err
		}
		a.logger.Info().Printf("%d tasks harvested from %q", h.Len(), a.Config.Index)
		ts = ts.Append(h)
	}
	return ts, nil
}

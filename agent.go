package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sevlyar/go-daemon"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"training-perf-agent/config"
	"training-perf-agent/datasets"
	"training-perf-agent/hardware"
	"training-perf-agent/report"
)

// Agent rebuilds the report on a schedule and keeps the latest one on disk.
type Agent struct {
	schedule string
	path     string
	timeout  time.Duration

	rebuild chan struct{}
	reload  chan struct{}
	flush   chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	cron   *cron.Cron
	cache  *datasets.Cache

	builder *report.Builder
	last    *report.Report
}

var (
	daemonContext *daemon.Context
	agent         *Agent
)

func NewAgent(c *config.Config, hw hardware.Spec) (*Agent, error) {
	a := Agent{
		schedule: c.Schedule,
		path:     c.Output,
		timeout:  5 * time.Minute,
	}
	if err := a.Init(c, hw); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Agent) Init(c *config.Config, hw hardware.Spec) error {
	log.Debug("agent init")
	a.rebuild = make(chan struct{}, 1)
	a.reload = make(chan struct{})
	a.flush = make(chan struct{})
	a.stop = make(chan struct{})
	a.stopped = make(chan struct{})
	a.ctx, a.cancel = context.WithCancel(context.Background())

	catalog, err := datasets.LoadCatalog(c.DatasetsRoot)
	if err != nil {
		log.Warnf("no dataset catalog in %s: %v", c.DatasetsRoot, err)
		catalog, _ = datasets.ParseManifest(c.DatasetsRoot, []byte(`{}`))
	}
	a.cache = datasets.NewCache(datasets.CatalogLoader(catalog), c.Cache.MaxSize, c.Cache.TTL)
	a.builder = &report.Builder{Config: c, Cache: a.cache, Hardware: hw}

	a.cron = cron.New()
	if _, err := a.cron.AddFunc(a.schedule, a.requestRebuild); err != nil {
		return err
	}
	return nil
}

// requestRebuild never blocks the scheduler; a pending rebuild absorbs it.
func (a *Agent) requestRebuild() {
	select {
	case a.rebuild <- struct{}{}:
	default:
		log.Debug("rebuild already pending")
	}
}

func (a *Agent) updateReport() {
	log.Debug("agent build report")
	ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
	defer cancel()
	r, err := a.builder.Build(ctx)
	if err != nil {
		log.Errorf("build report: %v", err)
		return
	}
	a.last = r
}

func (a *Agent) flushToFile() {
	log.Debugf("agent flush to path %s", a.path)
	if a.last == nil {
		return
	}
	if err := a.last.WriteFile(a.path); err != nil {
		log.Errorf("write %s: %v", a.path, err)
	}
}

func (a *Agent) Flush() {
	a.flush <- struct{}{}
}

// Reload drops cached datasets and rebuilds.
func (a *Agent) Reload() {
	a.reload <- struct{}{}
}

func (a *Agent) Worker() {
	log.Debug("agent start")
	a.cron.Start()
	a.updateReport()
	a.flushToFile()
LOOP:
	for {
		select {
		case <-a.rebuild:
			a.updateReport()
			a.flushToFile()
		case <-a.reload:
			a.cache.Purge()
			a.updateReport()
			a.flushToFile()
		case <-a.flush:
			a.flushToFile()
		case <-a.stop:
			a.flushToFile()
			break LOOP
		}
	}
	a.stopped <- struct{}{}
}

func (a *Agent) Stop() {
	log.Debug("agent stop")
	<-a.cron.Stop().Done()
	a.cancel()
	a.stop <- struct{}{}
	<-a.stopped
	a.cache.Stop()
	log.Debug("agent stopped")
}

func termHandler(sig os.Signal) error {
	log.Infof("signal by %v ...", sig)
	if agent != nil {
		agent.Stop()
	}
	if daemonContext != nil {
		daemonContext.Release()
		log.Info("daemon stopped")
	}
	return daemon.ErrStop
}

func reloadHandler(sig os.Signal) error {
	log.Infof("reload datasets by %v", sig)
	if agent != nil {
		agent.Reload()
	}
	return nil
}

func newAgentCommand() *cobra.Command {
	var isForeground bool
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Rebuild the report on a schedule, reload datasets on SIGHUP",
		RunE: func(cmd *cobra.Command, args []string) error {
			daemonContext = &daemon.Context{
				PidFileName: "perf-agent.pid",
				PidFilePerm: 0644,
				LogFileName: "perf-agent.log",
				LogFilePerm: 0640,
				WorkDir:     "./",
				Umask:       027,
				Args:        os.Args,
			}

			// Demonize the perf-agent
			if !isForeground {
				d, err := daemonContext.Reborn()
				if err != nil {
					return err
				}
				if d != nil {
					// Parent process
					return nil
				}
				defer daemonContext.Release()
				log.Info("daemon started")
			} else {
				daemonContext = nil
			}

			daemon.SetSigHandler(reloadHandler, syscall.SIGHUP)
			daemon.SetSigHandler(termHandler, syscall.SIGTERM)
			daemon.SetSigHandler(termHandler, syscall.SIGQUIT)
			daemon.SetSigHandler(termHandler, syscall.SIGINT)

			log.Debugf("output: %s", cfg.Output)
			log.Debugf("schedule: %s", cfg.Schedule)
			log.Debugf("isForeground: %v", isForeground)

			_, hw := budgetGB()
			a, err := NewAgent(cfg, hw)
			if err != nil {
				return err
			}
			agent = a

			// Run MainLoop as worker thread
			go agent.Worker()

			// Handle the signals
			return daemon.ServeSignals()
		},
	}
	cmd.Flags().BoolVarP(&isForeground, "foreground", "D", false, "Run the agent in foreground")
	cmd.Flags().String("output", "perf-report.json", "Path of the report file")
	cmd.Flags().String("schedule", "@every 15m", "Cron schedule of report rebuilds")
	return cmd
}

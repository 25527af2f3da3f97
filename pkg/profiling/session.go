// Package profiling ties the tool's lifecycle together: startup banner,
// interceptor, launch log, and the termination report.
package profiling

import (
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"InstrCount/pkg/config"
	"InstrCount/pkg/counters"
	"InstrCount/pkg/device"
	"InstrCount/pkg/exporting"
	"InstrCount/pkg/intercept"
	"InstrCount/pkg/report"
)

// Session is one attachment of the tool to a process.
type Session struct {
	cfg       *config.Config
	tool      *intercept.Tool
	launchLog *exporting.LaunchLog
	reporter  *report.Reporter
	finished  bool
}

// Start prints the configuration banner to banner (if non-nil), opens the
// launch log and creates the interceptor.
func Start(cfg *config.Config, banner io.Writer, opts ...intercept.Option) (*Session, error) {
	cfg.ApplyLogLevel()
	if banner != nil {
		cfg.PrintBanner(banner)
	}

	s := &Session{
		cfg:      cfg,
		reporter: report.New(cfg.CountWarpLevel),
	}

	if cfg.LaunchLog != "" {
		ll, err := exporting.NewLaunchLog(cfg.LaunchLog)
		if err != nil {
			return nil, fmt.Errorf("failed to open launch log: %w", err)
		}
		s.launchLog = ll
		opts = append(opts, intercept.WithRecorder(ll))
		log.Infof("Writing launch log to %s (session %s)", ll.Path(), ll.Session())
	}

	s.tool = intercept.New(cfg, opts...)
	return s, nil
}

// Tool returns the interceptor to register with the host.
func (s *Session) Tool() *intercept.Tool { return s.tool }

// LaunchLog returns the launch log, or nil when none is configured.
func (s *Session) LaunchLog() *exporting.LaunchLog { return s.launchLog }

// Finish prints the summary to w and closes every output. It must be called
// once no launch can still be in flight.
func (s *Session) Finish(w io.Writer) (counters.Totals, error) {
	totals := s.tool.Totals()
	if s.finished {
		return totals, nil
	}
	s.finished = true

	var errs []error
	if err := s.reporter.Print(w, totals); err != nil {
		errs = append(errs, err)
	}
	if s.cfg.MetricsFile != "" {
		if err := s.reporter.WriteTextfile(s.cfg.MetricsFile, totals); err != nil {
			errs = append(errs, err)
		}
	}
	if s.launchLog != nil {
		if err := s.launchLog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close launch log: %w", err))
		}
	}

	functions, probes := s.tool.Instrumented()
	log.Debugf("Instrumented %d functions with %d probes over %d launches", functions, probes, s.tool.Launches())
	return totals, errors.Join(errs...)
}

// PrintDevices writes the GPU inventory to w. A missing NVML library is
// logged and otherwise ignored.
func PrintDevices(w io.Writer, lib device.Library) {
	info, err := device.Collect(lib)
	if err != nil {
		log.Warnf("GPU inventory unavailable: %v", err)
		return
	}
	info.Print(w)
}

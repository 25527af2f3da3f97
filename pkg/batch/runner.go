// Package batch runs target programs under the tool and retries runs that
// crashed.
package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"InstrCount/pkg/config"
)

const (
	// DefaultResultFile receives the combined output of one run.
	DefaultResultFile = "nvbit_result.txt"
	DefaultMaxTries   = 3
	// DefaultSuccessMarker must appear in the output of a good run. An empty
	// marker disables the check.
	DefaultSuccessMarker = "Success"
)

var crashMarkers = [][]byte{[]byte("Segmentation fault"), []byte("Aborted")}

// Job is one program invocation.
type Job struct {
	Name    string
	Dir     string
	Command []string
}

// Result is the outcome of a Job after all attempts.
type Result struct {
	Job      Job
	Attempts int
	Skipped  bool
	OK       bool
	Reason   string
}

// Runner starts jobs with the tool injected.
type Runner struct {
	ToolPath      string
	Config        *config.Config
	MaxTries      int
	ResultFile    string
	SuccessMarker string
	// Rerun ignores existing successful results.
	Rerun bool
	// Stdout, when set, also receives the job output.
	Stdout io.Writer
}

// NewRunner returns a Runner with the default retry policy.
func NewRunner(toolPath string, cfg *config.Config) *Runner {
	return &Runner{
		ToolPath:      toolPath,
		Config:        cfg,
		MaxTries:      DefaultMaxTries,
		ResultFile:    DefaultResultFile,
		SuccessMarker: DefaultSuccessMarker,
	}
}

// Environ returns the environment of a job process.
func (r *Runner) Environ() []string {
	env := os.Environ()
	if r.ToolPath != "" {
		env = append(env, config.EnvInjectionPath+"="+r.ToolPath)
	}
	if r.Config != nil {
		env = append(env, r.Config.Environ()...)
	}
	return env
}

// ResultPath returns where the output of job is written.
func (r *Runner) ResultPath(job Job) string {
	return filepath.Join(job.Dir, r.ResultFile)
}

// Run executes job until its output is clean or the attempts run out.
func (r *Runner) Run(ctx context.Context, job Job) Result {
	res := Result{Job: job}
	if len(job.Command) == 0 {
		res.Reason = "no command"
		return res
	}
	if err := os.MkdirAll(job.Dir, 0755); err != nil {
		res.Reason = err.Error()
		return res
	}

	path := r.ResultPath(job)
	if !r.Rerun {
		if ok, _ := r.Check(path); ok {
			res.Skipped, res.OK = true, true
			return res
		}
	}

	tries := max(r.MaxTries, 1)
	for res.Attempts < tries {
		res.Attempts++
		if res.Attempts > 1 {
			log.Infof("Retrying %s (attempt %d/%d): %s", job.Name, res.Attempts, tries, res.Reason)
		}
		if err := r.runOnce(ctx, job, path); err != nil {
			res.Reason = err.Error()
			if ctx.Err() != nil {
				return res
			}
			continue
		}
		ok, reason := r.Check(path)
		res.OK, res.Reason = ok, reason
		if ok {
			return res
		}
	}
	return res
}

func (r *Runner) runOnce(ctx context.Context, job Job, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create result file: %w", err)
	}
	defer out.Close()

	var w io.Writer = out
	if r.Stdout != nil {
		w = io.MultiWriter(out, r.Stdout)
	}

	cmd := exec.CommandContext(ctx, job.Command[0], job.Command[1:]...)
	cmd.Dir = job.Dir
	cmd.Env = r.Environ()
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}
	waitErr := cmd.Wait()

	if cmd.ProcessState != nil {
		if msg := signalMessage(cmd.ProcessState.Sys()); msg != "" {
			fmt.Fprintln(w, msg)
		}
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return waitErr
	}
	return nil
}

// signalMessage renders a fatal signal the way a shell reports it.
func signalMessage(sys interface{}) string {
	ws, ok := sys.(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	switch unix.Signal(ws.Signal()) {
	case unix.SIGSEGV:
		return "Segmentation fault"
	case unix.SIGABRT:
		return "Aborted"
	}
	return "Killed by signal " + unix.SignalName(unix.Signal(ws.Signal()))
}

// Check inspects a result file. A run is good when the file exists, has no
// crash marker and, if a success marker is configured, contains it.
func (r *Runner) Check(path string) (bool, string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Sprintf("result file %s doesn't exist", path)
	}
	for _, m := range crashMarkers {
		if bytes.Contains(data, m) {
			return false, fmt.Sprintf("%s occurred in %s", m, path)
		}
	}
	if r.SuccessMarker != "" && !bytes.Contains(data, []byte(r.SuccessMarker)) {
		return false, fmt.Sprintf("%q missing from %s", r.SuccessMarker, path)
	}
	return true, ""
}

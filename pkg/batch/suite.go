package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Suite is a set of benchmarks, each run over several datasets. A missing
// success_marker keeps the runner default; an empty one disables the check.
type Suite struct {
	Tool          string      `yaml:"tool"`
	BinDir        string      `yaml:"bin_dir"`
	ResultDir     string      `yaml:"result_dir"`
	MaxTries      int         `yaml:"max_tries"`
	SuccessMarker *string     `yaml:"success_marker"`
	Benchmarks    []Benchmark `yaml:"benchmarks"`
}

// Benchmark is one program and its datasets.
type Benchmark struct {
	Name   string    `yaml:"name"`
	Binary string    `yaml:"binary"`
	Runs   []Dataset `yaml:"runs"`
}

// Dataset is one argument set and the subdirectory its results go to.
type Dataset struct {
	Subdir string `yaml:"subdir"`
	Args   string `yaml:"args"`
}

// LoadSuite reads a suite file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite: %w", err)
	}
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse suite: %w", err)
	}
	if s.ResultDir == "" {
		s.ResultDir = "run"
	}
	return &s, nil
}

// Jobs expands the suite into one Job per benchmark dataset.
func (s *Suite) Jobs() ([]Job, error) {
	var jobs []Job
	for _, b := range s.Benchmarks {
		if b.Name == "" {
			return nil, fmt.Errorf("benchmark without a name")
		}
		bin := b.Binary
		if bin == "" {
			bin = filepath.Join(s.BinDir, b.Name)
		}
		for i, d := range b.Runs {
			subdir := d.Subdir
			if subdir == "" {
				subdir = fmt.Sprintf("%d", i)
			}
			jobs = append(jobs, Job{
				Name:    b.Name + "/" + subdir,
				Dir:     filepath.Join(s.ResultDir, b.Name, subdir),
				Command: append([]string{bin}, strings.Fields(d.Args)...),
			})
		}
	}
	return jobs, nil
}

// RunAll executes jobs with at most procs running at once and returns the
// results in job order. Job failures are reported in the results; the error
// is non-nil only when ctx is cancelled, in which case jobs that had not
// started are marked failed without running.
func RunAll(ctx context.Context, r *Runner, jobs []Job, procs int) ([]Result, error) {
	results := make([]Result, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(procs, 1))

	var mu sync.Mutex
	done := 0
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Job: job, Reason: err.Error()}
				return err
			}
			log.Infof("Trace generation: %s", job.Name)
			results[i] = r.Run(ctx, job)

			mu.Lock()
			done++
			log.Debugf("Finished %s (%d/%d)", job.Name, done, len(jobs))
			mu.Unlock()
			return ctx.Err()
		})
	}
	return results, g.Wait()
}

// Failed returns the results that did not end cleanly.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.OK {
			out = append(out, r)
		}
	}
	return out
}

package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InstrCount/pkg/config"
)

func writeResult(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultResultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		content string
		marker  string
		ok      bool
	}{
		{"clean", "Total app warp-level instructions: 10\n", "", true},
		{"segfault", "kernel 0\nSegmentation fault\n", "", false},
		{"abort", "Aborted (core dumped)\n", "", false},
		{"marker present", "PASSED\n", "PASSED", true},
		{"marker missing", "FAILED\n", "PASSED", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner("", nil)
			r.SuccessMarker = tt.marker
			ok, reason := r.Check(writeResult(t, tt.content))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.ok, reason == "")
		})
	}

	ok, reason := NewRunner("", nil).Check(filepath.Join(t.TempDir(), "none.txt"))
	assert.False(t, ok)
	assert.Contains(t, reason, "doesn't exist")
}

func TestCheckRequiresSuccessByDefault(t *testing.T) {
	r := NewRunner("", nil)
	assert.Equal(t, DefaultSuccessMarker, r.SuccessMarker)

	ok, reason := r.Check(writeResult(t, "Total app warp-level instructions: 10\n"))
	assert.False(t, ok)
	assert.Contains(t, reason, `"Success" missing`)

	ok, _ = r.Check(writeResult(t, "Success\nTotal app warp-level instructions: 10\n"))
	assert.True(t, ok)
}

func TestSignalMessage(t *testing.T) {
	assert.Equal(t, "Segmentation fault", signalMessage(syscall.WaitStatus(syscall.SIGSEGV)))
	assert.Equal(t, "Aborted", signalMessage(syscall.WaitStatus(syscall.SIGABRT)))
	assert.Equal(t, "Killed by signal SIGKILL", signalMessage(syscall.WaitStatus(syscall.SIGKILL)))
	assert.Empty(t, signalMessage(syscall.WaitStatus(0)))
	assert.Empty(t, signalMessage(nil))
}

func TestEnviron(t *testing.T) {
	cfg := config.New()
	cfg.ExcludePredOff = true
	env := NewRunner("/opt/tools/instrcount.so", cfg).Environ()

	assert.Contains(t, env, "CUDA_INJECTION64_PATH=/opt/tools/instrcount.so")
	assert.Contains(t, env, "EXCLUDE_PRED_OFF=1")
}

func TestRunRetriesCrashes(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner("", nil)
	r.MaxTries = 2

	res := r.Run(context.Background(), Job{
		Name:    "crash",
		Dir:     dir,
		Command: []string{"sh", "-c", "echo Segmentation fault"},
	})
	assert.False(t, res.OK)
	assert.Equal(t, 2, res.Attempts)
	assert.Contains(t, res.Reason, "Segmentation fault")
}

func TestRunSkipsCleanResults(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner("", config.New())
	job := Job{Name: "ok", Dir: dir, Command: []string{"sh", "-c", "echo Success $COUNT_WARP_LEVEL"}}

	res := r.Run(context.Background(), job)
	require.True(t, res.OK, res.Reason)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Skipped)

	data, err := os.ReadFile(r.ResultPath(job))
	require.NoError(t, err)
	assert.Equal(t, "Success 1\n", string(data))

	res = r.Run(context.Background(), job)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.Attempts)

	r.Rerun = true
	res = r.Run(context.Background(), job)
	assert.False(t, res.Skipped)
}

const suiteYAML = `
tool: /opt/tools/instrcount.so
bin_dir: /opt/bench/bin
max_tries: 5
benchmarks:
  - name: bfs
    runs:
      - subdir: small
        args: graph4096.txt
      - args: "graph1MW_6.txt  -v"
  - name: lud
    binary: ./lud_cuda
    runs:
      - subdir: "256"
        args: -s 256
`

func TestSuiteJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(suiteYAML), 0644))

	s, err := LoadSuite(path)
	require.NoError(t, err)
	assert.Equal(t, "run", s.ResultDir)
	assert.Equal(t, 5, s.MaxTries)
	assert.Nil(t, s.SuccessMarker)

	jobs, err := s.Jobs()
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, Job{
		Name:    "bfs/small",
		Dir:     filepath.Join("run", "bfs", "small"),
		Command: []string{"/opt/bench/bin/bfs", "graph4096.txt"},
	}, jobs[0])
	assert.Equal(t, "bfs/1", jobs[1].Name)
	assert.Equal(t, []string{"/opt/bench/bin/bfs", "graph1MW_6.txt", "-v"}, jobs[1].Command)
	assert.Equal(t, []string{"./lud_cuda", "-s", "256"}, jobs[2].Command)
}

func TestRunAll(t *testing.T) {
	root := t.TempDir()
	var jobs []Job
	for i, script := range []string{"echo PASSED", "echo Aborted", "echo PASSED"} {
		jobs = append(jobs, Job{
			Name:    script,
			Dir:     filepath.Join(root, fmt.Sprintf("job%d", i)),
			Command: []string{"sh", "-c", script},
		})
	}

	r := NewRunner("", nil)
	r.MaxTries = 1
	r.SuccessMarker = "PASSED"
	results, err := RunAll(context.Background(), r, jobs, 2)
	require.NoError(t, err)

	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, jobs[i], res.Job)
	}
	failed := Failed(results)
	require.Len(t, failed, 1)
	assert.Equal(t, "echo Aborted", failed[0].Job.Name)
}

func TestRunAllCancelled(t *testing.T) {
	root := t.TempDir()
	var jobs []Job
	for i := 0; i < 3; i++ {
		jobs = append(jobs, Job{
			Name:    fmt.Sprintf("job%d", i),
			Dir:     filepath.Join(root, fmt.Sprintf("job%d", i)),
			Command: []string{"sh", "-c", "echo Success"},
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := RunAll(ctx, NewRunner("", nil), jobs, 1)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, jobs[i], res.Job)
		assert.False(t, res.OK)
		assert.Zero(t, res.Attempts)
		assert.NoFileExists(t, filepath.Join(jobs[i].Dir, DefaultResultFile))
	}
}

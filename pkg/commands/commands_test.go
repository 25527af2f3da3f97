package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InstrCount/pkg/exporting"
)

const workload = `
functions:
  - name: _Z3addPfS_S_
    sass:
      - "IADD3 R1, R2, R3, RZ"
      - "VOTE.BALL R0, PT, P0"
      - "EXIT"
steps:
  - launch: _Z3addPfS_S_
    warps: 2
    repeat: 3
`

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "batch", "replay", "graph"}, names)
}

func TestReplayAndGraph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workload.yaml")
	require.NoError(t, os.WriteFile(path, []byte(workload), 0644))
	logPath := filepath.Join(dir, "launches.csv")

	root := NewRootCmd()
	root.SetArgs([]string{"replay", "--end-grid", "2", "--launch-log", logPath, path})
	require.NoError(t, root.Execute())

	rows, err := exporting.LoadRows(logPath)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, uint64(6), rows[1].Instructions)
	assert.Equal(t, uint64(12), rows[2].TotalInstructions)
	assert.False(t, rows[2].Active)

	out := filepath.Join(dir, "graphs")
	root = NewRootCmd()
	root.SetArgs([]string{"graph", "-o", out, logPath})
	require.NoError(t, root.Execute())
	assert.FileExists(t, filepath.Join(out, "launches.html"))
}

func TestRunRequiresCommand(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"run", "--tool", "/opt/tools/instrcount.so"})
	assert.Error(t, root.Execute())
}

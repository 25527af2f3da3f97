package profiling

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InstrCount/pkg/config"
	"InstrCount/pkg/device"
	"InstrCount/pkg/exporting"
	"InstrCount/pkg/host"
	"InstrCount/pkg/intercept"
	"InstrCount/pkg/sim"
)

func TestSessionLifecycle(t *testing.T) {
	dir := t.TempDir()
	cfg := config.New()
	cfg.CountWarpLevel = false
	cfg.LaunchLog = filepath.Join(dir, "launches.jsonl")
	cfg.MetricsFile = filepath.Join(dir, "instrcount.prom")

	var banner bytes.Buffer
	s, err := Start(cfg, &banner, intercept.WithFatal(func(format string, args ...interface{}) {
		t.Errorf("unexpected fatal: "+format, args...)
	}))
	require.NoError(t, err)
	assert.Contains(t, banner.String(), "EXCLUDE_PRED_OFF")
	require.NotNil(t, s.LaunchLog())

	h := sim.NewHost(s.Tool())
	shfl := sim.NewFunction(1, "_Z4shflv", "shfl()", []string{
		"SHFL.DOWN PT, R5, R4, 0x1, 0x1f",
		"EXIT",
	})
	params := host.LaunchParams{Grid: host.Dim3{X: 1}, Block: host.Dim3{X: 64}}
	h.Launch(shfl, host.LaunchKernel, params, sim.Warps(2, 32))
	h.Launch(shfl, host.LaunchCooperativeKernelPTSZ, params, sim.Warps(2, 32))

	var out bytes.Buffer
	totals, err := s.Finish(&out)
	require.NoError(t, err)
	assert.Equal(t, uint64(128), totals.Instructions)
	assert.Equal(t, uint64(64), totals.Shuffle)
	assert.Equal(t, uint64(1), totals.Cooperative)
	assert.Contains(t, out.String(), "Total app thread-level instructions: 128\n")

	rows, err := exporting.LoadRows(cfg.LaunchLog)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, s.LaunchLog().Session(), rows[0].Session)
	assert.Equal(t, uint64(64), rows[0].Shuffle)
	assert.True(t, rows[1].Cooperative)

	metrics, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "instrcount_cooperative_launches_total 1")

	// A second Finish reports nothing new.
	out.Reset()
	_, err = s.Finish(&out)
	require.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestStartRejectsUnknownLogFormat(t *testing.T) {
	cfg := config.New()
	cfg.LaunchLog = filepath.Join(t.TempDir(), "launches.xml")
	_, err := Start(cfg, nil)
	assert.Error(t, err)
}

type fakeDriver struct {
	device.Library
	init nvml.Return
}

func (d fakeDriver) Init() nvml.Return                              { return d.init }
func (fakeDriver) Shutdown() nvml.Return                            { return nvml.SUCCESS }
func (fakeDriver) SystemGetDriverVersion() (string, nvml.Return)    { return "550.54.15", nvml.SUCCESS }
func (fakeDriver) SystemGetCudaDriverVersion() (int, nvml.Return)   { return 12040, nvml.SUCCESS }
func (fakeDriver) DeviceGetCount() (int, nvml.Return)               { return 0, nvml.SUCCESS }
func (fakeDriver) DeviceGetHandleByIndex(int) (device.Device, nvml.Return) {
	return nil, nvml.ERROR_NOT_FOUND
}

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	PrintDevices(&buf, fakeDriver{init: nvml.SUCCESS})
	assert.Equal(t, "Driver 550.54.15, CUDA 12.4, 0 GPU(s)\n", buf.String())

	buf.Reset()
	PrintDevices(&buf, fakeDriver{init: nvml.ERROR_DRIVER_NOT_LOADED})
	assert.Empty(t, buf.String())
}

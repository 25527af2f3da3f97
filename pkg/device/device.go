// Package device reads the GPU inventory through NVML so reports can name the
// hardware they were taken on.
package device

import (
	"errors"
	"fmt"
	"io"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	log "github.com/sirupsen/logrus"
)

// GPU is the static description of one device.
type GPU struct {
	Index int
	Name  string
	UUID  string
	Major int
	Minor int
}

// Info is the device inventory of the host.
type Info struct {
	DriverVersion string
	CUDAVersion   string
	GPUs          []GPU
}

// Device is the subset of nvml.Device the inventory reads.
type Device interface {
	GetName() (string, nvml.Return)
	GetUUID() (string, nvml.Return)
	GetCudaComputeCapability() (int, int, nvml.Return)
}

// Library is the subset of NVML the inventory needs.
type Library interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	SystemGetDriverVersion() (string, nvml.Return)
	SystemGetCudaDriverVersion() (int, nvml.Return)
	DeviceGetCount() (int, nvml.Return)
	DeviceGetHandleByIndex(i int) (Device, nvml.Return)
}

type nvmlLibrary struct{}

// NVML returns the Library backed by the system NVML.
func NVML() Library { return nvmlLibrary{} }

func (nvmlLibrary) Init() nvml.Return     { return nvml.Init() }
func (nvmlLibrary) Shutdown() nvml.Return { return nvml.Shutdown() }

func (nvmlLibrary) SystemGetDriverVersion() (string, nvml.Return) {
	return nvml.SystemGetDriverVersion()
}

func (nvmlLibrary) SystemGetCudaDriverVersion() (int, nvml.Return) {
	return nvml.SystemGetCudaDriverVersion()
}

func (nvmlLibrary) DeviceGetCount() (int, nvml.Return) { return nvml.DeviceGetCount() }

func (nvmlLibrary) DeviceGetHandleByIndex(i int) (Device, nvml.Return) {
	return nvml.DeviceGetHandleByIndex(i)
}

// Collect reads the inventory. Missing per-device fields are left empty.
func Collect(lib Library) (*Info, error) {
	if ret := lib.Init(); !errors.Is(ret, nvml.SUCCESS) {
		return nil, fmt.Errorf("failed to initialize NVML: %s", nvml.ErrorString(ret))
	}
	defer lib.Shutdown()

	info := &Info{}
	if v, ret := lib.SystemGetDriverVersion(); errors.Is(ret, nvml.SUCCESS) {
		info.DriverVersion = v
	}
	if v, ret := lib.SystemGetCudaDriverVersion(); errors.Is(ret, nvml.SUCCESS) {
		info.CUDAVersion = fmt.Sprintf("%d.%d", v/1000, (v%1000)/10)
	}

	count, ret := lib.DeviceGetCount()
	if !errors.Is(ret, nvml.SUCCESS) {
		return nil, fmt.Errorf("failed to count devices: %s", nvml.ErrorString(ret))
	}

	for i := 0; i < count; i++ {
		dev, ret := lib.DeviceGetHandleByIndex(i)
		if !errors.Is(ret, nvml.SUCCESS) {
			log.Warnf("Skipping GPU %d: %s", i, nvml.ErrorString(ret))
			continue
		}
		gpu := GPU{Index: i}
		if v, ret := dev.GetName(); errors.Is(ret, nvml.SUCCESS) {
			gpu.Name = v
		}
		if v, ret := dev.GetUUID(); errors.Is(ret, nvml.SUCCESS) {
			gpu.UUID = v
		}
		if major, minor, ret := dev.GetCudaComputeCapability(); errors.Is(ret, nvml.SUCCESS) {
			gpu.Major, gpu.Minor = major, minor
		}
		info.GPUs = append(info.GPUs, gpu)
	}
	return info, nil
}

// Print writes one line per GPU.
func (i *Info) Print(w io.Writer) {
	fmt.Fprintf(w, "Driver %s, CUDA %s, %d GPU(s)\n", i.DriverVersion, i.CUDAVersion, len(i.GPUs))
	for _, g := range i.GPUs {
		fmt.Fprintf(w, "  GPU %d: %s (%s) sm_%d%d\n", g.Index, g.Name, g.UUID, g.Major, g.Minor)
	}
}

package sim

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"InstrCount/pkg/host"
)

// Workload is a replayable description of a GPU program: its functions and
// the ordered sequence of launches and profiler calls it issues.
type Workload struct {
	Functions []FunctionSpec `yaml:"functions"`
	Steps     []StepSpec     `yaml:"steps"`

	once     sync.Once
	funcs    map[string]*Function
	buildErr error
}

// FunctionSpec declares one compiled function.
type FunctionSpec struct {
	Name      string   `yaml:"name"`
	Demangled string   `yaml:"demangled"`
	Calls     []string `yaml:"calls"`
	SASS      []string `yaml:"sass"`
}

// StepSpec is either a launch or a profiler call.
type StepSpec struct {
	Profiler string    `yaml:"profiler"` // "start" or "stop"
	Launch   string    `yaml:"launch"`   // function name
	Kind     string    `yaml:"kind"`
	Grid     host.Dim3 `yaml:"grid"`
	Block    host.Dim3 `yaml:"block"`
	Warps    int       `yaml:"warps"`
	Lanes    int       `yaml:"lanes"`
	PredOn   *int      `yaml:"pred_lanes"`
	Repeat   int       `yaml:"repeat"`
}

// LoadWorkload reads a workload from a YAML file.
func LoadWorkload(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workload: %w", err)
	}
	return ParseWorkload(data)
}

// ParseWorkload decodes a YAML workload.
func ParseWorkload(data []byte) (*Workload, error) {
	var w Workload
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse workload: %w", err)
	}
	return &w, nil
}

// Build decodes the functions and resolves call edges. The result is
// computed once, so concurrent replays of w launch the same functions.
func (w *Workload) Build() (map[string]*Function, error) {
	w.once.Do(func() {
		w.funcs, w.buildErr = w.build()
	})
	return w.funcs, w.buildErr
}

func (w *Workload) build() (map[string]*Function, error) {
	funcs := make(map[string]*Function, len(w.Functions))
	for i, spec := range w.Functions {
		if spec.Name == "" {
			return nil, fmt.Errorf("function %d has no name", i)
		}
		if _, dup := funcs[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate function %q", spec.Name)
		}
		funcs[spec.Name] = NewFunction(host.FunctionID(i+1), spec.Name, spec.Demangled, spec.SASS)
	}
	for _, spec := range w.Functions {
		for _, callee := range spec.Calls {
			g, ok := funcs[callee]
			if !ok {
				return nil, fmt.Errorf("function %q calls unknown function %q", spec.Name, callee)
			}
			funcs[spec.Name].Calls(g)
		}
	}
	return funcs, nil
}

// Replay issues every step of w against h, in order.
func (w *Workload) Replay(h *Host) error {
	funcs, err := w.Build()
	if err != nil {
		return err
	}

	for i, step := range w.Steps {
		switch {
		case step.Profiler == "start":
			h.ProfilerStart()
		case step.Profiler == "stop":
			h.ProfilerStop()
		case step.Profiler != "":
			return fmt.Errorf("step %d: unknown profiler call %q", i, step.Profiler)
		case step.Launch != "":
			fn, ok := funcs[step.Launch]
			if !ok {
				return fmt.Errorf("step %d: unknown function %q", i, step.Launch)
			}
			kind := host.LaunchKernel
			if step.Kind != "" {
				if kind, ok = host.ParseLaunchKind(step.Kind); !ok {
					return fmt.Errorf("step %d: unknown launch kind %q", i, step.Kind)
				}
			}
			params := host.LaunchParams{Grid: step.Grid, Block: step.Block}
			warps := step.warps()
			for r := 0; r < max(step.Repeat, 1); r++ {
				h.Launch(fn, kind, params, warps)
			}
		default:
			return fmt.Errorf("step %d: neither a launch nor a profiler call", i)
		}
	}
	return nil
}

func (s StepSpec) warps() []Warp {
	n := s.Warps
	if n <= 0 {
		n = 1
	}
	lanes := s.Lanes
	if lanes <= 0 {
		lanes = 32
	}
	out := Warps(n, lanes)
	if s.PredOn != nil {
		pred := laneMask(*s.PredOn)
		for i := range out {
			out[i].Pred = out[i].Active & pred
		}
	}
	return out
}

// Package config provides configuration management for the tool.
package config

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"InstrCount/pkg/classify"
	"InstrCount/pkg/instrument"
	"InstrCount/pkg/region"
)

// Environment variable names read by the tool.
const (
	EnvInstrBegin      = "INSTR_BEGIN"
	EnvInstrEnd        = "INSTR_END"
	EnvStartGrid       = "START_GRID_NUM"
	EnvEndGrid         = "END_GRID_NUM"
	EnvCountWarpLevel  = "COUNT_WARP_LEVEL"
	EnvExcludePredOff  = "EXCLUDE_PRED_OFF"
	EnvActiveFromStart = "ACTIVE_FROM_START"
	EnvMangledNames    = "MANGLED_NAMES"
	EnvVerbose         = "TOOL_VERBOSE"
	EnvLaunchLog       = "TOOL_LAUNCH_LOG"
	EnvMetricsFile     = "TOOL_METRICS_FILE"
	EnvInjectionPath   = "CUDA_INJECTION64_PATH"
)

// Config holds all tool configuration options. It is immutable once the tool
// has started.
type Config struct {
	// Counting settings
	InstrBegin     uint32
	InstrEnd       uint32
	CountWarpLevel bool
	ExcludePredOff bool

	// Region settings
	StartGrid       uint32
	EndGrid         uint32
	ActiveFromStart bool

	// Diagnostics
	MangledNames bool
	Verbose      int

	// Output settings
	LaunchLog   string
	MetricsFile string
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		InstrBegin:      0,
		InstrEnd:        math.MaxUint32,
		StartGrid:       0,
		EndGrid:         math.MaxUint32,
		CountWarpLevel:  true,
		ExcludePredOff:  false,
		ActiveFromStart: true,
		MangledNames:    true,
		Verbose:         0,
	}
}

// Getenv looks up an environment variable.
type Getenv func(key string) (string, bool)

// FromEnv reads the configuration from the process environment.
func FromEnv() *Config {
	return Load(os.LookupEnv)
}

// Load reads the configuration through getenv. Values that do not parse keep
// their default and are reported with a warning.
func Load(getenv Getenv) *Config {
	c := New()
	readUint32(getenv, EnvInstrBegin, &c.InstrBegin)
	readUint32(getenv, EnvInstrEnd, &c.InstrEnd)
	readUint32(getenv, EnvStartGrid, &c.StartGrid)
	readUint32(getenv, EnvEndGrid, &c.EndGrid)
	readBool(getenv, EnvCountWarpLevel, &c.CountWarpLevel)
	readBool(getenv, EnvExcludePredOff, &c.ExcludePredOff)
	readBool(getenv, EnvActiveFromStart, &c.ActiveFromStart)
	readBool(getenv, EnvMangledNames, &c.MangledNames)
	readInt(getenv, EnvVerbose, &c.Verbose)
	if v, ok := getenv(EnvLaunchLog); ok {
		c.LaunchLog = v
	}
	if v, ok := getenv(EnvMetricsFile); ok {
		c.MetricsFile = v
	}
	return c
}

func readUint32(getenv Getenv, key string, dst *uint32) {
	raw, ok := getenv(key)
	if !ok || raw == "" {
		return
	}
	v, err := parseDecimal(raw, cast.ToInt64E)
	if err == nil && (v < 0 || v > math.MaxUint32) {
		err = fmt.Errorf("out of range [0, %d]", uint32(math.MaxUint32))
	}
	if err != nil {
		log.Warnf("Ignoring %s=%q: %v", key, raw, err)
		return
	}
	*dst = uint32(v)
}

// parseDecimal reads s in base 10 the way atoi does: leading zeros are
// stripped before conversion so they are not taken as an octal prefix.
func parseDecimal[T int | int64](s string, conv func(interface{}) (T, error)) (T, error) {
	s = strings.TrimSpace(s)
	sign, digits := "", s
	if strings.HasPrefix(s, "-") {
		sign, digits = "-", s[1:]
	}
	if digits == "" || strings.Trim(digits, "0123456789") != "" {
		return 0, fmt.Errorf("%q is not a decimal number", s)
	}
	if digits = strings.TrimLeft(digits, "0"); digits == "" {
		digits = "0"
	}
	return conv(sign + digits)
}

func readBool(getenv Getenv, key string, dst *bool) {
	raw, ok := getenv(key)
	if !ok || raw == "" {
		return
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		log.Warnf("Ignoring %s=%q: %v", key, raw, err)
		return
	}
	*dst = v
}

func readInt(getenv Getenv, key string, dst *int) {
	raw, ok := getenv(key)
	if !ok || raw == "" {
		return
	}
	v, err := parseDecimal(raw, cast.ToIntE)
	if err != nil {
		log.Warnf("Ignoring %s=%q: %v", key, raw, err)
		return
	}
	*dst = v
}

// InstrRange returns the instruction eligibility interval.
func (c *Config) InstrRange() classify.Range {
	return classify.Range{Begin: c.InstrBegin, End: c.InstrEnd}
}

// RegionMode returns the region mode selected by ActiveFromStart.
func (c *Config) RegionMode() region.Mode {
	if c.ActiveFromStart {
		return region.Interval
	}
	return region.Signal
}

// InstrumentOptions returns the settings the instrumentor needs.
func (c *Config) InstrumentOptions() instrument.Options {
	return instrument.Options{
		Range:          c.InstrRange(),
		CountWarpLevel: c.CountWarpLevel,
		ExcludePredOff: c.ExcludePredOff,
		MangledNames:   c.MangledNames,
		Verbose:        c.Verbose,
	}
}

// Environ renders the configuration back into KEY=VALUE pairs for a child
// process.
func (c *Config) Environ() []string {
	env := []string{
		EnvInstrBegin + "=" + strconv.FormatUint(uint64(c.InstrBegin), 10),
		EnvInstrEnd + "=" + strconv.FormatUint(uint64(c.InstrEnd), 10),
		EnvStartGrid + "=" + strconv.FormatUint(uint64(c.StartGrid), 10),
		EnvEndGrid + "=" + strconv.FormatUint(uint64(c.EndGrid), 10),
		EnvCountWarpLevel + "=" + boolEnv(c.CountWarpLevel),
		EnvExcludePredOff + "=" + boolEnv(c.ExcludePredOff),
		EnvActiveFromStart + "=" + boolEnv(c.ActiveFromStart),
		EnvMangledNames + "=" + boolEnv(c.MangledNames),
		EnvVerbose + "=" + strconv.Itoa(c.Verbose),
	}
	if c.LaunchLog != "" {
		env = append(env, EnvLaunchLog+"="+c.LaunchLog)
	}
	if c.MetricsFile != "" {
		env = append(env, EnvMetricsFile+"="+c.MetricsFile)
	}
	return env
}

func boolEnv(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// PrintBanner writes one line per setting, the way the tool announces its
// configuration at startup.
func (c *Config) PrintBanner(w io.Writer) {
	rows := []struct {
		name  string
		value interface{}
		help  string
	}{
		{EnvInstrBegin, c.InstrBegin, "Beginning of the instruction interval where to apply instrumentation"},
		{EnvInstrEnd, c.InstrEnd, "End of the instruction interval where to apply instrumentation"},
		{EnvStartGrid, c.StartGrid, "Beginning of the kernel launch interval where to apply instrumentation"},
		{EnvEndGrid, c.EndGrid, "End of the kernel launch interval where to apply instrumentation"},
		{EnvCountWarpLevel, boolEnv(c.CountWarpLevel), "Count warp level or thread level instructions"},
		{EnvExcludePredOff, boolEnv(c.ExcludePredOff), "Exclude predicated off instruction from count"},
		{EnvActiveFromStart, boolEnv(c.ActiveFromStart), "Start instruction counting from start or wait for cuProfilerStart and cuProfilerStop"},
		{EnvMangledNames, boolEnv(c.MangledNames), "Print kernel names mangled or not"},
		{EnvVerbose, c.Verbose, "Enable verbosity inside the tool"},
	}
	fmt.Fprintln(w, "------------- instrcount -------------")
	for _, r := range rows {
		fmt.Fprintf(w, "%-18s = %-10v - %s\n", r.name, r.value, r.help)
	}
	fmt.Fprintln(w, "--------------------------------------")
}

// ApplyLogLevel raises the log level to debug when verbosity is requested.
func (c *Config) ApplyLogLevel() {
	if c.Verbose > 0 {
		log.SetLevel(log.DebugLevel)
	}
}

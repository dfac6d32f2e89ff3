// Package config resolves a fuzzing run's configuration from CLI flags and
// WAZZI_*-prefixed environment variables, mirroring the env-to-flag mapping
// convention used by CLI tools in this stack.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "wazzi"

// Config is a single fuzzing run's configuration.
type Config struct {
	// SchemaPath is the path to the .witx-dialect package to load.
	SchemaPath string
	// Runtimes is the set of runtime identifiers to run in parallel. A name
	// of "wazero" or "wasmtime" selects that in-process backend; any other
	// name runs on the backend named by Backend.
	Runtimes []string
	// Seed seeds the random byte pool. Two runs with the same seed and
	// schema MUST produce identical call sequences (spec §5).
	Seed int64
	// PoolSize is the size in bytes of the random byte pool (spec §3, 1
	// MiB default per spec §5).
	PoolSize int
	// CallBudget caps the number of calls per run.
	CallBudget int
	// SolveTimeBudget bounds a single solver invocation (spec §4.5/§5).
	SolveTimeBudget time.Duration
	// MaxModels caps the solution-space size collected per call (spec
	// §4.5, default 100).
	MaxModels int
	// CallDeadline is the per-call wall-clock deadline after which the
	// runtime's thread kills the guest and reports a hang (spec §5).
	CallDeadline time.Duration
	// TraceDir is the root directory for the run's trace store.
	TraceDir string
	// Resume, if set, is a previous TraceDir to resume from (SPEC_FULL
	// §2.13/§4.6).
	Resume string
	// Replay is set by the replay subcommand (not a flag): reuse Resume's
	// persisted pool from its first byte under a fresh trace directory,
	// instead of continuing from the recorded checkpoint.
	Replay bool
	// Backend selects the in-process executor backend ("wazero" or
	// "wasmtime") for runtime names that are not themselves a backend name.
	Backend string
	// Strategy selects the function-selection policy ("uniform" or
	// "stateful", spec §4.6).
	Strategy string
	// ExecutorPath is the path to the guest executor WASM module, used by
	// the in-process backends.
	ExecutorPath string
	// PreopenDirs is the set of host directories granted to the guest
	// executor as WASI preopens (spec §3's "preopened directory"; per-run
	// tempdir creation itself is the out-of-scope launcher plumbing spec
	// §1 calls out, so this lists already-prepared directories).
	PreopenDirs []string
}

// BindFlags registers this config's flags on cmd and returns a function that
// must be called after cmd.Flags() are parsed to materialize the Config.
func BindFlags(cmd *cobra.Command) func() (*Config, error) {
	flags := cmd.Flags()
	flags.String("schema", "", "path to the witx-dialect schema package")
	flags.StringSlice("runtime", nil, "runtime launcher identifier(s) to drive in parallel")
	flags.Int64("seed", 0, "random pool seed")
	flags.Int("pool-size", 1<<20, "random byte pool size in bytes")
	flags.Int("call-budget", 10_000, "maximum calls per run")
	flags.Duration("solve-time-budget", 2*time.Second, "per-call solver time budget")
	flags.Int("max-models", 100, "maximum models collected per call")
	flags.Duration("call-deadline", 10*time.Second, "per-call wall-clock deadline")
	flags.String("trace-dir", "", "trace store root directory")
	flags.String("resume", "", "resume a previous trace directory")
	flags.String("backend", "wazero", "in-process executor backend: wazero or wasmtime")
	flags.String("strategy", "uniform", "function selection policy: uniform or stateful")
	flags.String("executor", "", "path to the guest executor wasm module")
	flags.StringSlice("preopen", nil, "host directory to grant the guest executor as a WASI preopen (repeatable)")

	return func() (*Config, error) {
		if err := checkEnvironmentVariables(cmd); err != nil {
			return nil, err
		}
		return &Config{
			SchemaPath:      mustString(flags, "schema"),
			Runtimes:        mustStringSlice(flags, "runtime"),
			Seed:            mustInt64(flags, "seed"),
			PoolSize:        mustInt(flags, "pool-size"),
			CallBudget:      mustInt(flags, "call-budget"),
			SolveTimeBudget: mustDuration(flags, "solve-time-budget"),
			MaxModels:       mustInt(flags, "max-models"),
			CallDeadline:    mustDuration(flags, "call-deadline"),
			TraceDir:        mustString(flags, "trace-dir"),
			Resume:          mustString(flags, "resume"),
			Backend:         mustString(flags, "backend"),
			Strategy:        mustString(flags, "strategy"),
			ExecutorPath:    mustString(flags, "executor"),
			PreopenDirs:     mustStringSlice(flags, "preopen"),
		}, nil
	}
}

// checkEnvironmentVariables fills in any flag not explicitly set on the
// command line from a WAZZI[_<subcommand>]_<FLAG_NAME> environment variable.
func checkEnvironmentVariables(cmd *cobra.Command) error {
	var errs []string
	v := viper.New()
	v.AutomaticEnv()
	if cmd.Name() == envPrefix {
		v.SetEnvPrefix(envPrefix)
	} else {
		v.SetEnvPrefix(fmt.Sprintf("%s_%s", envPrefix, cmd.Name()))
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		name := strings.ReplaceAll(f.Name, "-", "_")
		if !f.Changed && v.IsSet(name) {
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(name))); err != nil {
				errs = append(errs, err.Error())
			}
		}
	})
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("mapping environment variables to command flags: %s", strings.Join(errs, "; "))
}

func mustString(f *pflag.FlagSet, name string) string {
	v, _ := f.GetString(name)
	return v
}

func mustStringSlice(f *pflag.FlagSet, name string) []string {
	v, _ := f.GetStringSlice(name)
	return v
}

func mustInt64(f *pflag.FlagSet, name string) int64 {
	v, _ := f.GetInt64(name)
	return v
}

func mustInt(f *pflag.FlagSet, name string) int {
	v, _ := f.GetInt(name)
	return v
}

func mustDuration(f *pflag.FlagSet, name string) time.Duration {
	v, _ := f.GetDuration(name)
	return v
}

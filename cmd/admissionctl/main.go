/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command admissionctl resolves throttle definitions and replays consensus-ordered operation streams through them.
//
// Usage:
//
//	admissionctl resolve --definitions throttles.yaml --replicas 4
//	admissionctl replay --config admission.yaml --input ops.csv --snapshot-out usage.bin
package main

import (
	"errors"
	"fmt"
	"io"
	golog "log"
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/acronis/go-admission/config"
	"github.com/acronis/go-admission/expiry"
	"github.com/acronis/go-admission/internal/libinfo"
	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/throttledefs"
)

var errUsage = errors.New("usage: admissionctl <resolve|replay|version> [flags]")

func main() {
	if err := runApp(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		golog.Fatal(err)
	}
}

func runApp(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "resolve":
		return runResolve(args[1:], stdout, stderr)
	case "replay":
		return runReplay(args[1:], stdin, stdout, stderr)
	case "version":
		_, err := fmt.Fprintln(stdout, libinfo.GetLibVersion())
		return err
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

type commonFlags struct {
	configPath      string
	definitionsPath string
	replicas        int
}

func (f *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "path to the YAML or JSON configuration file")
	fs.StringVarP(&f.definitionsPath, "definitions", "d", "", "path to the throttle definitions (overrides admission.definitionsPath)")
	fs.IntVarP(&f.replicas, "replicas", "r", 1, "number of replicas the capacity is split between (overrides admission.replicas)")
}

func loadAppConfig(fs *pflag.FlagSet, f *commonFlags) (*AppConfig, error) {
	cfgLoader := config.NewDefaultLoader(envVarsPrefix)
	if fs.Changed("definitions") {
		cfgLoader.DataProvider.Set("admission."+cfgKeyDefinitionsPath, f.definitionsPath)
	}
	if fs.Changed("replicas") {
		cfgLoader.DataProvider.Set("admission."+cfgKeyReplicas, f.replicas)
	}
	cfg := NewAppConfig()
	if f.configPath == "" {
		return cfg, cfgLoader.Load(cfg)
	}
	dataType, err := throttledefs.DataTypeFromPath(f.configPath)
	if err != nil {
		return nil, err
	}
	return cfg, cfgLoader.LoadFromFile(f.configPath, dataType, cfg)
}

func setup(fs *pflag.FlagSet, f *commonFlags) (*engine, func(), error) {
	cfg, err := loadAppConfig(fs, f)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, loggerClose := log.NewLogger(cfg.Log)
	e, err := newEngine(cfg.Admission, logger)
	if err != nil {
		loggerClose()
		return nil, nil, err
	}
	return e, func() { loggerClose() }, nil
}

func runResolve(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("resolve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	var f commonFlags
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, closeFn, err := setup(fs, &f)
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err = fmt.Fprintln(stdout, e.throttling.ResolvedSummary()); err != nil {
		return err
	}
	if gasSummary := e.throttling.ResolvedGasSummary(); gasSummary != "" {
		if _, err = fmt.Fprintln(stdout, gasSummary); err != nil {
			return err
		}
	}
	if !e.expiry.IsSet() {
		_, err = fmt.Fprintln(stdout, "Expiry throttle is not configured")
		return err
	}
	costs := e.expiry.Costs()
	kinds := make([]string, 0, len(costs))
	for kind := range costs {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	if _, err = fmt.Fprintln(stdout, "Expiry work costs (ops per access) - "); err != nil {
		return err
	}
	for _, kind := range kinds {
		if _, err = fmt.Fprintf(stdout, "  %s: %d\n", kind, costs[expiry.AccessKind(kind)]); err != nil {
			return err
		}
	}
	return nil
}

func runReplay(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	var f commonFlags
	f.register(fs)
	inputPath := fs.StringP("input", "i", "", "path to the CSV stream of <unix nanos>,<operation>[,<count>] (stdin if empty)")
	snapshotIn := fs.String("snapshot-in", "", "path to the usage snapshots to restore before replaying")
	snapshotOut := fs.String("snapshot-out", "", "path to save the usage snapshots to after replaying")
	metricsFile := fs.String("metrics-file", "", "path to write decision metrics to in Prometheus text format")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, closeFn, err := setup(fs, &f)
	if err != nil {
		return err
	}
	defer closeFn()

	if *snapshotIn != "" {
		if err = e.loadSnapshots(*snapshotIn); err != nil {
			return err
		}
	}

	input := stdin
	if *inputPath != "" {
		file, openErr := os.Open(*inputPath)
		if openErr != nil {
			return fmt.Errorf("open input: %w", openErr)
		}
		defer func() { _ = file.Close() }()
		input = file
	}

	result, err := replay(e, input)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if err = result.write(stdout); err != nil {
		return err
	}

	if *snapshotOut != "" {
		if err = e.saveSnapshots(*snapshotOut); err != nil {
			return err
		}
	}
	if *metricsFile != "" {
		reg := prometheus.NewRegistry()
		if err = reg.Register(e.metrics.Decisions); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		if err = prometheus.WriteToTextfile(*metricsFile, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

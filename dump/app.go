// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package dump defines the logic for the "s2dump" app.
//
// This app loads a directory of protocol definitions, then opens each replay
// named on the command line and prints a summary of it. Replays are decoded in
// parallel.
//
// This demonstrates how to build a protocol Registry, configure which streams
// are decoded, and consume decoded replays.
package dump

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/danjacques/gos2replay/mpq"
	"github.com/danjacques/gos2replay/protocol"
	"github.com/danjacques/gos2replay/replay"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

type options struct {
	protocolDir string
	streams     replay.StreamsFlag
	workers     int
	fallback    bool
	events      []string
	format      string
	listFiles   bool
	metricsAddr string
	verbose     bool
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	o.streams = replay.StreamsFlag(replay.DefaultStreams)

	fs.StringVarP(&o.protocolDir, "protocols", "p", "protocols",
		"Directory of protocol definition files.")
	fs.VarP(&o.streams, "streams", "s",
		"Comma-separated streams to decode. Options: "+replay.StreamsFlagValues())
	fs.IntVarP(&o.workers, "workers", "w", 4,
		"Number of replays to decode in parallel.")
	fs.BoolVar(&o.fallback, "fallback", false,
		"Decode replays of unknown builds using the latest protocol.")
	fs.StringSliceVar(&o.events, "events", nil,
		"If set, only count events with these names.")
	fs.StringVar(&o.format, "format", "text",
		"Output format: text or yaml.")
	fs.BoolVar(&o.listFiles, "list-files", false,
		"List each archive's files instead of decoding it.")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "",
		"If set, serve Prometheus metrics on this address.")
	fs.BoolVarP(&o.verbose, "verbose", "v", false,
		"Enable verbose logging.")
}

func (o *options) config(reg *protocol.Registry, logger *logrus.Logger) *replay.Config {
	cfg := replay.Config{
		Registry:         reg,
		Logger:           logger,
		FallbackToLatest: o.fallback,
		Streams:          o.streams.Value(),
		NoStreams:        o.streams.Value() == replay.StreamsNone,
	}

	if len(o.events) > 0 {
		allowed := make(map[string]struct{}, len(o.events))
		for _, name := range o.events {
			allowed[name] = struct{}{}
		}
		cfg.AllowEvent = func(name string) bool {
			_, ok := allowed[name]
			return ok
		}
	}
	return &cfg
}

// Main is the main entry point.
func Main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var o options
	fs := pflag.NewFlagSet("s2dump", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	o.addFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := logrus.New()
	logger.Out = stderr
	if o.verbose {
		logger.Level = logrus.DebugLevel
	}

	var w writer
	switch o.format {
	case "text":
		w = &textWriter{out: stdout}
	case "yaml":
		w = &yamlWriter{out: stdout}
	default:
		logger.Errorf("Unknown output format %q.", o.format)
		return 2
	}

	if fs.NArg() == 0 {
		logger.Error("No replays specified.")
		return 2
	}

	if o.listFiles {
		return listFiles(fs.Args(), stdout, logger)
	}

	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		replay.RegisterMonitoring(reg)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(o.metricsAddr, mux); err != nil {
				logger.Warnf("Metrics server stopped: %s", err)
			}
		}()
	}

	var reg protocol.Registry
	if err := reg.LoadDir(o.protocolDir); err != nil {
		logger.Errorf("Could not load protocols from %q: %s", o.protocolDir, err)
		return 1
	}
	if len(reg.Builds()) == 0 {
		logger.Errorf("No protocols found in %q.", o.protocolDir)
		return 1
	}
	logger.Debugf("Loaded protocols for builds %v.", reg.Builds())

	failed := 0
	cfg := o.config(&reg, logger)
	err := cfg.OpenAll(context.Background(), fs.Args(), o.workers, func(path string, rp *replay.Replay, err error) error {
		if err != nil {
			logger.Errorf("Could not decode replay %q: %s", path, err)
			failed++
			return nil
		}
		return w.write(summarize(rp))
	})
	if err == nil {
		err = w.close()
	}
	if err != nil {
		logger.Errorf("Could not write output: %s", err)
		return 1
	}

	if failed > 0 {
		logger.Warnf("%d of %d replay(s) failed to decode.", failed, fs.NArg())
		return 1
	}
	return 0
}

func listFiles(paths []string, out io.Writer, logger *logrus.Logger) int {
	rv := 0
	for _, path := range paths {
		if err := listArchiveFiles(path, out, logger); err != nil {
			logger.Errorf("Could not list files of %q: %s", path, err)
			rv = 1
		}
	}
	return rv
}

func listArchiveFiles(path string, out io.Writer, logger *logrus.Logger) error {
	a, err := mpq.Open(path, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	names, err := a.Files()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: %s\n", path, a.Header())
	for _, name := range names {
		be, ok := a.Resolve(name)
		if !ok {
			fmt.Fprintf(out, "  %s (missing)\n", name)
			continue
		}
		fmt.Fprintf(out, "  %-32s %10s %10s  %s\n", name,
			humanize.Bytes(uint64(be.ArchivedSize)), humanize.Bytes(uint64(be.Size)), be.Flags)
	}
	return nil
}

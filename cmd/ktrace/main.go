// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/ktrace-io/ktrace/lib/config"
	"github.com/ktrace-io/ktrace/lib/version"
	"github.com/ktrace-io/ktrace/pipeline"
	"github.com/ktrace-io/ktrace/session"
	"github.com/ktrace-io/ktrace/tracefs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Handle --version before flag parsing so it works regardless of
	// other arguments.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("ktrace %s\n", version.Info())
		return nil
	}

	flagSet := pflag.NewFlagSet("ktrace", pflag.ContinueOnError)
	bufferKB := flagSet.IntP("buffer", "b", 0, "per-CPU ring buffer size in KB")
	durationSec := flagSet.IntP("time", "t", 0, "capture duration in seconds")
	delaySec := flagSet.IntP("delay", "s", 0, "sleep this many seconds before starting")
	circular := flagSet.BoolP("circular", "c", false, "overwrite oldest records when the buffer fills")
	noTgid := flagSet.Bool("no-tgid", false, "omit thread group ids from trace output")
	functions := flagSet.StringP("functions", "k", "", "comma-separated kernel functions to trace")
	sched := flagSet.Bool("sched", true, "record scheduler switch/wakeup events")
	compress := flagSet.BoolP("compress", "z", false, "compress the dumped trace")
	formatName := flagSet.String("format", "", "compressed stream format: zlib, zstd, lz4 (replay default: auto)")
	decompress := flagSet.StringP("decompress", "d", "", "decompress FILE to stdout instead of capturing")
	asyncBegin := flagSet.Bool("async-begin", false, "arm the session and return immediately")
	asyncStop := flagSet.Bool("async-stop", false, "stop a running session and dump its buffer")
	asyncDump := flagSet.Bool("async-dump", false, "dump the buffer of a running session")
	stream := flagSet.Bool("stream", false, "stream trace records to stdout (not implemented)")
	listCategories := flagSet.Bool("list-categories", false, "list supported trace categories")
	configPath := flagSet.String("config", "", "path to a ktrace YAML config file")
	force := flagSet.Bool("force", false, "allow compressed output on a terminal")
	flagSet.BoolP("help", "h", false, "show help")

	flagSet.Usage = func() { printHelp(flagSet) }
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	logLevel := slog.LevelInfo
	if os.Getenv("KTRACE_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if *listCategories {
		// Category support beyond the fixed built-in event set does
		// not exist yet.
		fmt.Println("no supported categories")
		return nil
	}

	var fileConfig config.Config
	var err error
	if *configPath != "" {
		fileConfig, err = config.LoadFile(*configPath)
	} else {
		fileConfig, err = config.Load()
	}
	if err != nil {
		return err
	}

	// Flags override config-file defaults.
	if !flagSet.Changed("buffer") {
		*bufferKB = fileConfig.BufferSizeKB
	}
	if !flagSet.Changed("time") {
		*durationSec = fileConfig.DurationSeconds
	}

	format := pipeline.Format(fileConfig.Format)
	if flagSet.Changed("format") {
		format, err = pipeline.ParseFormat(*formatName)
		if err != nil {
			return err
		}
	}
	if *decompress != "" && !flagSet.Changed("format") {
		format = pipeline.FormatAuto
	}

	if *compress && !*force && term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("refusing to write compressed binary data to a terminal (use --force or redirect)")
	}

	sessionConfig := session.Config{
		BufferSizeKB:   *bufferKB,
		Overwrite:      *circular,
		Duration:       time.Duration(*durationSec) * time.Second,
		Delay:          time.Duration(*delaySec) * time.Second,
		PrintTgid:      !*noTgid,
		Functions:      *functions,
		SchedEvents:    *sched,
		Compress:       *compress,
		Format:         format,
		DecompressFile: *decompress,
		Stream:         *stream,
		BeginAsync:     *asyncBegin,
		StopAsync:      *asyncStop,
		DumpAsync:      *asyncDump,
	}

	// Replay never touches the kernel, so only live captures need a
	// tracefs mount.
	root := fileConfig.TracefsRoot
	if root == "" && *decompress == "" {
		root, err = tracefs.DetectRoot()
		if err != nil {
			return err
		}
	}
	gateway := tracefs.New(root, logger)

	abort := &session.AbortFlag{}
	stopMonitor := session.Monitor(abort, logger)
	defer stopMonitor()

	controller, err := session.New(sessionConfig, gateway, abort, os.Stdout, logger)
	if err != nil {
		return err
	}
	return controller.Run()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Print(`ktrace - capture kernel ftrace sessions

USAGE
    ktrace [flags]

FLAGS
`)
	flagSet.PrintDefaults()
	fmt.Print(`
EXAMPLES
    # Capture 5 seconds of scheduler activity
    ktrace -t 5 > trace.txt

    # Compressed capture with a bigger buffer
    ktrace -b 8192 -t 10 -z > trace.z

    # Replay a compressed capture
    ktrace -d trace.z > trace.txt

    # Split session across invocations
    ktrace --async-begin
    ktrace --async-stop > trace.txt

ENVIRONMENT
    KTRACE_CONFIG  Path to a YAML config file with capture defaults
    KTRACE_DEBUG   Enable debug logging
`)
}

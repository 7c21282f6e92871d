// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

// kunda packs a directory tree into a single compressed archive and unpacks it.
//
// Usage:
//
//	kunda create <dir> [-o out.kun] [--method lzma|deflate|bzip|auto] [--preset fast|balanced|max|ultra]
//	kunda extract <archive> [-C dir]
//	kunda list <archive> [--yaml]
//	kunda info <archive>
//
// Defaults can be supplied with a YAML file through --config or KUNDA_CONFIG.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// errUsage marks errors caused by bad command-line input.
var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// command is one subcommand.
type command struct {
	run     func(env *cmdEnv, args []string) error
	flags   func(fs *pflag.FlagSet)
	name    string
	usage   string
	summary string
}

// cmdEnv carries parsed common flags and loaded configuration into a subcommand.
type cmdEnv struct {
	ctx    context.Context
	stdout io.Writer
	logger *slog.Logger
	cfg    *config
	flags  *pflag.FlagSet
}

var commands = []command{
	{name: "create", usage: "create <dir>", summary: "pack a directory into an archive", flags: createFlags, run: runCreate},
	{name: "extract", usage: "extract <archive>", summary: "unpack an archive into a directory", flags: extractFlags, run: runExtract},
	{name: "list", usage: "list <archive>", summary: "list archive entries", flags: listFlags, run: runList},
	{name: "info", usage: "info <archive>", summary: "show the archive header", flags: infoFlags, run: runInfo},
}

func run(args []string, stdout io.Writer, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return fmt.Errorf("%w: missing command", errUsage)
	}

	switch args[0] {
	case "--version", "version":
		_, err := fmt.Fprintf(stdout, "kunda %s\n", version)
		return err
	case "-h", "--help", "help":
		printUsage(stdout)
		return nil
	}

	for _, cmd := range commands {
		if cmd.name == args[0] {
			return runCommand(cmd, args[1:], stdout, stderr)
		}
	}

	printUsage(stderr)
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func runCommand(cmd command, args []string, stdout io.Writer, stderr io.Writer) error {
	var (
		configPath string
		verbose    bool
	)

	fs := pflag.NewFlagSet("kunda "+cmd.name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configPath, "config", "", "YAML defaults file (default $"+configEnv+")")
	fs.BoolVarP(&verbose, "verbose", "v", false, "log per-file progress")
	cmd.flags(fs)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage:\n  kunda %s [flags]\n\nFlags:\n", cmd.usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !fs.Changed("verbose") {
		verbose = cfg.Verbose
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env := &cmdEnv{
		ctx:    ctx,
		stdout: stdout,
		logger: slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
		cfg:    cfg,
		flags:  fs,
	}

	return cmd.run(env, fs.Args())
}

// oneArg returns the single positional argument.
func oneArg(args []string, what string) (string, error) {
	switch len(args) {
	case 0:
		return "", fmt.Errorf("%w: missing %s", errUsage, what)
	case 1:
		return args[0], nil
	default:
		return "", fmt.Errorf("%w: unexpected argument %q", errUsage, args[1])
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "kunda %s - single-file archive tool\n\nUsage:\n", version)
	for _, cmd := range commands {
		fmt.Fprintf(w, "  kunda %-20s %s\n", cmd.usage, cmd.summary)
	}
	fmt.Fprintf(w, "\nRun \"kunda <command> --help\" for command flags.\n")
}

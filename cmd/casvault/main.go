// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements casvault, the command-line client for the
// content-addressable storage library in lib/backend and lib/frontend.
// It reads a single YAML configuration file (CASVAULT_CONFIG or
// --config) selecting a base backend and any codec wrappers, then
// dispatches to one of a fixed set of subcommands: push, pull, set,
// get, text, tag, tags, has, copy, rm, and keygen.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/casvault/cas/lib/config"
	"github.com/casvault/cas/lib/frontend"
	"github.com/casvault/cas/lib/observability"
	"github.com/casvault/cas/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

const usage = `usage: casvault [--config path] <command> [args]

commands:
  push <file|->              store stdin or a file, print its content id
  pull <cid> [--out file]    print (or write) the object stored at cid
  set <name> <file|->        set name's current content
  get <name> [--out file]    print (or write) name's current content
  text <name>                print name's current content as text
  tag <name>                 print name's current tag record as JSON
  tags <name>                print name's full tag history as JSON, newest first
  has <name>                 print "true"/"false" for whether name resolves; exit 1 if false
  copy <name> <alias>        point alias at name's current content
  rm <name>                  tombstone name, preserving its history
  keygen <dir>               generate an RSA key pair for the asymmetric wrapper
`

func run() error {
	var configPath string
	var showVersion bool
	pflag.StringVar(&configPath, "config", "", "path to casvault.yaml (overrides CASVAULT_CONFIG)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	pflag.Parse()

	if showVersion {
		fmt.Println("casvault", version.Info())
		return nil
	}

	if pflag.NArg() < 1 {
		pflag.Usage()
		return fmt.Errorf("no command given")
	}

	command := pflag.Arg(0)
	args := pflag.Args()[1:]

	if command == "keygen" {
		return cmdKeygen(args)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger()
	ctx := context.Background()

	be, closeBackend, err := buildBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()
	logger.Debug("backend ready", "backend", cfg.Backend, "command", command)

	fe := frontend.New(be)

	switch command {
	case "push":
		return cmdPush(ctx, fe, args)
	case "pull":
		return cmdPull(ctx, fe, args)
	case "set":
		return cmdSet(ctx, fe, args)
	case "get":
		return cmdGet(ctx, fe, args)
	case "text":
		return cmdText(ctx, fe, args)
	case "tag":
		return cmdTag(ctx, fe, args)
	case "tags":
		return cmdTags(ctx, fe, args)
	case "has":
		return cmdHas(ctx, fe, args)
	case "copy":
		return cmdCopy(ctx, fe, args)
	case "rm":
		return cmdRm(ctx, fe, args)
	default:
		pflag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// loadConfig prefers an explicit --config path over CASVAULT_CONFIG,
// matching the "no fallbacks, no discovery" rule the config package
// documents: exactly one of the two must resolve to a file.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// readInput returns the bytes of path, or stdin's bytes if path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// writeOutput writes data to path, or to stdout if path is "" or "-".
func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// newFlagSet builds a per-subcommand FlagSet whose errors are returned
// to the caller rather than terminating the process outright, so a bad
// flag on one subcommand goes through the same "error: ...\nexit 1"
// path as any other failure.
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

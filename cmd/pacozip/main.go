// Copyright (c) pacozip contributors
// Licensed under the MIT license

// Command pacozip is an interactive (or one-shot) shell over a single
// PacoZIP archive, exposing the ZIP/UNZIP/INFO/EC/REFRESH/EXIT command
// surface described alongside the core format.
package main

import (
	"errors"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/pacodinev/pacozip/pacozip"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("pacozip", flag.ContinueOnError)
	archivePath := fs.StringP("archive", "a", "", "path to the .pacozip archive (created if it doesn't exist)")
	configPath := fs.StringP("config", "c", "", "path to a .pacozip.json config file")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: pacozip -a <archive> [command...]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "With no trailing command, starts an interactive shell.")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  ZIP <path>...                      add files/folders")
		fmt.Fprintln(os.Stderr, "  UNZIP <dest> [<filter>...]         extract, optionally filtered")
		fmt.Fprintln(os.Stderr, "  INFO                               list entries")
		fmt.Fprintln(os.Stderr, "  EC                                 list entries with codec info")
		fmt.Fprintln(os.Stderr, "  REFRESH <stored_name> <source>     replace an entry's payload")
		fmt.Fprintln(os.Stderr, "  EXIT                               (interactive shell only)")
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *archivePath == "" {
		fs.Usage()
		return errors.New("missing -a/--archive")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	var arc *pacozip.Archive
	if _, statErr := os.Stat(*archivePath); os.IsNotExist(statErr) {
		arc, err = pacozip.Create(*archivePath)
	} else {
		arc, err = pacozip.Open(*archivePath)
	}
	if err != nil {
		return err
	}
	defer arc.Close()
	arc.SetDefaultStrategy(cfg.Strategy)

	sh := newShell(*archivePath, arc, cfg.TempDir)

	if rest := fs.Args(); len(rest) > 0 {
		if err := sh.dispatch(rest); err != nil && !errors.Is(err, errExit) {
			return err
		}
		return nil
	}
	return sh.runREPL()
}

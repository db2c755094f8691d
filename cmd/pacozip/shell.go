// Copyright (c) pacozip contributors
// Licensed under the MIT license

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/natefinch/atomic"
	"github.com/peterh/liner"
	"github.com/therootcompany/xz"

	"github.com/pacodinev/pacozip/pacozip"
)

// shell binds one open archive to the ZIP/UNZIP/INFO/EC/REFRESH/EXIT
// command surface, either driven interactively via liner or one-shot from
// the command line.
type shell struct {
	archive     *pacozip.Archive
	archivePath string
	tempDir     string
	out         io.Writer
}

func newShell(archivePath string, arc *pacozip.Archive, tempDir string) *shell {
	return &shell{archive: arc, archivePath: archivePath, tempDir: tempDir, out: os.Stdout}
}

// dispatch runs a single command given as whitespace-separated tokens,
// the shape a one-shot CLI invocation or a REPL line takes.
func (s *shell) dispatch(tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	cmd, args := strings.ToUpper(tokens[0]), tokens[1:]
	switch cmd {
	case "ZIP":
		return s.cmdZip(args)
	case "UNZIP":
		return s.cmdUnzip(args)
	case "INFO":
		return s.cmdInfo(args)
	case "EC":
		return s.cmdEC(args)
	case "REFRESH":
		return s.cmdRefresh(args)
	case "EXIT", "QUIT":
		return errExit
	default:
		return fmt.Errorf("unknown command %q (expected ZIP/UNZIP/INFO/EC/REFRESH/EXIT)", tokens[0])
	}
}

// errExit is returned by dispatch for EXIT/QUIT and unwrapped specially by
// the REPL and one-shot runners to mean "stop, not an error".
var errExit = errors.New("exit")

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pacozip_history")
}

// runREPL drives an interactive session with line editing and history via
// liner, in the same shape as a typical REPL over this package's domain
// operations.
func (s *shell) runREPL() error {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(func(line string) []string {
		cmds := []string{"ZIP", "UNZIP", "INFO", "EC", "REFRESH", "EXIT"}
		var out []string
		upper := strings.ToUpper(line)
		for _, c := range cmds {
			if strings.HasPrefix(c, upper) {
				out = append(out, c)
			}
		}
		return out
	})

	if f, err := os.Open(historyFilePath()); err == nil {
		ln.ReadHistory(f)
		f.Close()
	}

	s.checkRefreshJournal()

	fmt.Fprintf(s.out, "pacozip shell — %s\n", s.archivePath)
	for {
		line, err := ln.Prompt("pacozip> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		if err := s.dispatch(strings.Fields(line)); err != nil {
			if errors.Is(err, errExit) {
				break
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}

	if path := historyFilePath(); path != "" {
		if f, err := os.Create(path); err == nil {
			ln.WriteHistory(f)
			f.Close()
		}
	}
	return nil
}

// checkRefreshJournal warns if a prior REFRESH crashed between its journal
// write and completion; the journal itself survives such a crash because
// it was written atomically.
func (s *shell) checkRefreshJournal() {
	data, err := os.ReadFile(s.archivePath + ".refresh-journal")
	if err != nil {
		return
	}
	fmt.Fprintf(s.out, "warning: found an incomplete REFRESH from a prior run: %s\n", strings.TrimSpace(string(data)))
}

// cmdZip adds one or more filesystem paths to the archive. A directory
// argument is walked recursively; archive names are the path argument
// with its parent directory stripped, mirroring how the paths were named
// on the command line. A ".xz" source is transparently decompressed
// before being stored (the stored name drops the ".xz" suffix).
func (s *shell) cmdZip(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: ZIP <path> [<path>...]")
	}
	strategy := s.archive.GetDefaultStrategy()

	for _, root := range args {
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			if err := s.addPath(root, filepath.Base(root), strategy); err != nil {
				return err
			}
			continue
		}
		base := filepath.Dir(root)
		err = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(base, p)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)
			if d.IsDir() {
				if p == root {
					return nil
				}
				return s.archive.AddFolder(name)
			}
			return s.addPath(p, name, strategy)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *shell) addPath(sourcePath, name string, strategy pacozip.Strategy) error {
	f, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", sourcePath, err)
	}
	defer f.Close()

	if !strings.HasSuffix(name, ".xz") {
		return s.archive.AddFile(name, f, strategy)
	}
	name = strings.TrimSuffix(name, ".xz")

	r, err := xz.NewReader(f)
	if err != nil {
		return fmt.Errorf("open xz stream %s: %w", sourcePath, err)
	}

	tmp, err := os.CreateTemp(s.tempDir, "pacozip-unxz-*")
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()
	if _, err := io.Copy(tmp, r); err != nil {
		return fmt.Errorf("decompress %s: %w", sourcePath, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return s.archive.AddFile(name, tmp, strategy)
}

// cmdUnzip extracts every live entry into dest, or only those matching at
// least one of the trailing doublestar glob filters.
func (s *shell) cmdUnzip(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: UNZIP <dest> [<filter>...]")
	}
	dest, filters := args[0], args[1:]

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dest, err)
	}

	return s.archive.Iterate(func(e pacozip.EntryInfo) error {
		if len(filters) > 0 {
			matched := false
			for _, pattern := range filters {
				if ok, _ := doublestar.Match(pattern, e.Name); ok {
					matched = true
					break
				}
			}
			if !matched {
				return nil
			}
		}

		target := filepath.Join(dest, filepath.FromSlash(e.Name))
		if e.Kind == pacozip.KindFolder {
			return os.MkdirAll(target, 0o755)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		f, err := os.Create(target)
		if err != nil {
			return fmt.Errorf("create %s: %w", target, err)
		}
		defer f.Close()
		return s.archive.ReadFile(e.Name, f)
	})
}

// cmdInfo lists every live entry: name, kind, and payload size.
func (s *shell) cmdInfo(_ []string) error {
	fmt.Fprintf(s.out, "%-40s %-8s %10s\n", "NAME", "KIND", "SIZE")
	return s.archive.Iterate(func(e pacozip.EntryInfo) error {
		fmt.Fprintf(s.out, "%-40s %-8s %10d\n", e.Name, e.Kind, e.PayloadSize)
		return nil
	})
}

// cmdEC prints the default compression strategy and a codec-aware table
// of every live entry, the supplemented equivalent of the original
// implementation's EC command.
func (s *shell) cmdEC(_ []string) error {
	strategy := s.archive.GetDefaultStrategy()
	fmt.Fprintf(s.out, "default strategy: %s param=%d\n", strategy.CodecID, strategy.CodecParam)
	fmt.Fprintf(s.out, "%-40s %-8s %-6s %10s\n", "NAME", "KIND", "CODEC", "SIZE")
	return s.archive.Iterate(func(e pacozip.EntryInfo) error {
		fmt.Fprintf(s.out, "%-40s %-8s %-6s %10d\n", e.Name, e.Kind, e.CodecID, e.PayloadSize)
		return nil
	})
}

// cmdRefresh replaces name's payload in place: a named temporary journal
// records the intent atomically before the delete+add pair runs, so a
// crash mid-refresh leaves a recoverable trace rather than silent data
// loss (pacozip itself has no transactional update; this only makes the
// failure visible at the start of the next interactive session, per
// checkRefreshJournal).
func (s *shell) cmdRefresh(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: REFRESH <stored_name> <source_path>")
	}
	name, sourcePath := args[0], args[1]
	journalPath := s.archivePath + ".refresh-journal"

	if err := atomic.WriteFile(journalPath, strings.NewReader(name+"\n"+sourcePath+"\n")); err != nil {
		return fmt.Errorf("write refresh journal: %w", err)
	}
	defer os.Remove(journalPath)

	if err := s.archive.DeleteFile(name); err != nil && !errors.Is(err, pacozip.ErrNotFound) {
		return err
	}
	return s.archive.AddFileFromPath(name, sourcePath, s.archive.GetDefaultStrategy())
}

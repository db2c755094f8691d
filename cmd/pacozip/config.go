// Copyright (c) pacozip contributors
// Licensed under the MIT license

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/pacodinev/pacozip/codec"
	"github.com/pacodinev/pacozip/pacozip"
)

// fileConfig is the on-disk shape of .pacozip.json, parsed as
// JSON-with-comments.
type fileConfig struct {
	Codec   string `json:"codec,omitempty"`
	Param   uint8  `json:"param,omitempty"`
	TempDir string `json:"temp_dir,omitempty"`
}

// shellConfig is the resolved configuration the shell runs with.
type shellConfig struct {
	Strategy pacozip.Strategy
	TempDir  string
}

func defaultShellConfig() shellConfig {
	return shellConfig{Strategy: pacozip.Strategy{CodecID: codec.LZW, CodecParam: 4}}
}

// loadConfig reads path (or ".pacozip.json" in the current directory if
// path is empty and that file exists) and merges it onto the built-in
// default. A missing implicit config file is not an error; a missing
// explicit one is.
func loadConfig(path string) (shellConfig, error) {
	cfg := defaultShellConfig()

	explicit := path != ""
	if !explicit {
		path = ".pacozip.json"
		if _, err := os.Stat(path); err != nil {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return cfg, fmt.Errorf("invalid jsonc in %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(standardized, &fc); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	switch strings.ToUpper(fc.Codec) {
	case "":
		// keep default codec
	case "NONE":
		cfg.Strategy.CodecID, cfg.Strategy.CodecParam = codec.None, 0
	case "LZW":
		cfg.Strategy.CodecID = codec.LZW
		cfg.Strategy.CodecParam = fc.Param
	default:
		return cfg, fmt.Errorf("config %s: unknown codec %q", path, fc.Codec)
	}
	if fc.TempDir != "" {
		cfg.TempDir = fc.TempDir
	}
	return cfg, nil
}

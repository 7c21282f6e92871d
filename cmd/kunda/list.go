// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	kunda "github.com/Kundaliel/Kunda-Zip"
)

func listFlags(fs *pflag.FlagSet) {
	fs.Bool("yaml", false, "print entries as YAML")
	fs.String("prefix", "", "list only entries under this path")
}

func infoFlags(fs *pflag.FlagSet) {
	fs.Bool("yaml", false, "print the header as YAML")
}

func runList(env *cmdEnv, args []string) error {
	archivePath, err := oneArg(args, "archive")
	if err != nil {
		return err
	}

	entries, err := kunda.ListEntries(archivePath, kunda.ExtractOptions{Logger: env.logger})
	if err != nil {
		return err
	}

	prefix, _ := env.flags.GetString("prefix")
	entries = kunda.FilterEntries(entries, prefix)

	if asYAML, _ := env.flags.GetBool("yaml"); asYAML {
		return writeYAML(env.stdout, entries)
	}

	tw := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	var total uint64
	for _, e := range entries {
		size := uint64(e.Size) //nolint:gosec // non-negative
		total += size

		name := e.Path
		if e.Duplicate {
			name += " -> " + e.Target
		}
		fmt.Fprintf(tw, "%s\t  %s\n", humanize.IBytes(size), name)
	}
	fmt.Fprintf(tw, "%s\t  %d entries\n", humanize.IBytes(total), len(entries))

	return tw.Flush()
}

// headerView is the printable form of an archive header.
type headerView struct {
	Method         string `yaml:"method"`
	Flags          string `yaml:"flags"`
	Digest         string `yaml:"digest,omitempty"`
	OriginalSize   uint32 `yaml:"original_size"`
	CompressedSize uint32 `yaml:"compressed_size"`
	Version        uint8  `yaml:"version"`
}

func runInfo(env *cmdEnv, args []string) error {
	archivePath, err := oneArg(args, "archive")
	if err != nil {
		return err
	}

	h, err := kunda.ReadHeaderFile(archivePath)
	if err != nil {
		return err
	}

	view := headerView{
		Version:        h.Version,
		Method:         h.Method.String(),
		Flags:          h.Flags.String(),
		OriginalSize:   h.OriginalSize,
		CompressedSize: h.CompressedSize,
	}
	if h.Checksummed() {
		view.Digest = hex.EncodeToString(h.Digest[:])
	}

	if asYAML, _ := env.flags.GetBool("yaml"); asYAML {
		return writeYAML(env.stdout, view)
	}

	ratio := 0.0
	if h.OriginalSize > 0 {
		ratio = float64(h.CompressedSize) / float64(h.OriginalSize) * 100
	}

	tw := tabwriter.NewWriter(env.stdout, 0, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "version:\t%d\n", view.Version)
	fmt.Fprintf(tw, "method:\t%s\n", view.Method)
	fmt.Fprintf(tw, "flags:\t%s\n", view.Flags)
	fmt.Fprintf(tw, "catalog size:\t%s\n", humanize.IBytes(uint64(h.OriginalSize)))
	fmt.Fprintf(tw, "payload size:\t%s (%.1f%%)\n", humanize.IBytes(uint64(h.CompressedSize)), ratio)
	if view.Digest != "" {
		fmt.Fprintf(tw, "sha256:\t%s\n", view.Digest)
	}

	return tw.Flush()
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	return enc.Close()
}

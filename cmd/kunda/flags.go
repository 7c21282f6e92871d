// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Kundaliel
// Source: github.com/Kundaliel/Kunda-Zip

package main

import (
	"github.com/spf13/pflag"
	"github.com/woozymasta/pathrules"
)

// Flag values win over config values only when set on the command line.

func stringOverride(fs *pflag.FlagSet, name string, fallback string) string {
	if !fs.Changed(name) {
		return fallback
	}

	v, _ := fs.GetString(name)
	return v
}

func intOverride(fs *pflag.FlagSet, name string, fallback int) int {
	if !fs.Changed(name) {
		return fallback
	}

	v, _ := fs.GetInt(name)
	return v
}

func boolOverride(fs *pflag.FlagSet, name string, fallback bool) bool {
	if !fs.Changed(name) {
		return fallback
	}

	v, _ := fs.GetBool(name)
	return v
}

func stringArrayOverride(fs *pflag.FlagSet, name string, fallback []string) []string {
	if !fs.Changed(name) {
		return fallback
	}

	v, _ := fs.GetStringArray(name)
	return v
}

// scanRules turns --include/--exclude patterns into ordered rules. Excludes come last so
// they win over includes. Any include switches the default action to exclude.
func scanRules(includes []string, excludes []string, caseInsensitive bool) ([]pathrules.Rule, pathrules.MatcherOptions) {
	rules := make([]pathrules.Rule, 0, len(includes)+len(excludes))
	for _, p := range includes {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: p})
	}
	for _, p := range excludes {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: p})
	}

	opts := pathrules.MatcherOptions{
		CaseInsensitive: caseInsensitive,
		DefaultAction:   pathrules.ActionInclude,
	}
	if len(includes) > 0 {
		opts.DefaultAction = pathrules.ActionExclude
	}

	return rules, opts
}

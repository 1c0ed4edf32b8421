// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package backup holds the pure core shared by local and remote retention:
// grouping a flat file listing into logical backup instances, and deciding
// which instances an instance-count policy removes.
package backup

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// RemoteFileRef is one file or object as reported by a storage backend. The
// Handle is opaque to the core and carries whatever the backend needs to
// delete or re-reference the object (an SFTP path, an S3 object key, ...).
type RemoteFileRef struct {
	Name          string
	SortTimestamp time.Time
	Handle        any
}

// Instance is one logical backup: the primary archive plus any split volumes
// and sidecar manifest/checksum files that share its name stem.
type Instance struct {
	Key       string
	Timestamp time.Time
	Files     []RemoteFileRef
}

// dateTokens maps the config date-stamp tokens onto regex fragments and Go
// time layouts. Longer tokens first so MMM wins over MM and yyyy over yy-like
// prefixes.
var dateTokens = []struct {
	token   string
	pattern string
	layout  string
}{
	{"yyyy", `\d{4}`, "2006"},
	{"MMM", `[A-Za-z]{3}`, "Jan"},
	{"MM", `\d{2}`, "01"},
	{"dd", `\d{2}`, "02"},
	{"HH", `\d{2}`, "15"},
	{"mm", `\d{2}`, "04"},
	{"ss", `\d{2}`, "05"},
}

// Pattern is a compiled job naming pattern: "<baseName> [<date>]<ext>".
type Pattern struct {
	prefix     *regexp.Regexp
	layout     string
	primaryExt string
}

// CompilePattern translates a date-stamp format such as "yyyy-MM-dd HHmmss"
// into a matcher for file names of the job.
func CompilePattern(baseName, dateFormat, primaryExt string) (*Pattern, error) {
	if strings.TrimSpace(baseName) == "" {
		return nil, fmt.Errorf("base name is empty")
	}

	var pattern, layout strings.Builder
	rest := dateFormat
	for rest != "" {
		matched := false
		for _, tok := range dateTokens {
			if strings.HasPrefix(rest, tok.token) {
				pattern.WriteString(tok.pattern)
				layout.WriteString(tok.layout)
				rest = rest[len(tok.token):]
				matched = true
				break
			}
		}
		if !matched {
			pattern.WriteString(regexp.QuoteMeta(rest[:1]))
			layout.WriteString(rest[:1])
			rest = rest[1:]
		}
	}

	re, err := regexp.Compile(`^(` + regexp.QuoteMeta(baseName) + ` \[` + pattern.String() + `\])`)
	if err != nil {
		return nil, fmt.Errorf("compile date format %q: %w", dateFormat, err)
	}

	return &Pattern{prefix: re, layout: layout.String(), primaryExt: primaryExt}, nil
}

// Layout returns the Go time layout equivalent of the compiled date format,
// used when producing new archive names.
func (p *Pattern) Layout() string { return p.layout }

// Match returns the instance key for a file name, or "" when the name does
// not belong to this job's naming scheme.
func (p *Pattern) Match(name string) string {
	m := p.prefix.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1] + p.primaryExt
}

// ParseTimestamp extracts the date stamp embedded in a matching file name.
// Backends without reliable listing mtimes order instances through this.
func (p *Pattern) ParseTimestamp(name string) (time.Time, bool) {
	m := p.prefix.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(m[1], "]")
	open := strings.LastIndex(stamp, "[")
	if open < 0 {
		return time.Time{}, false
	}
	ts, err := time.Parse(p.layout, stamp[open+1:])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Group classifies a flat file listing into backup instances. Files whose
// names do not match the job's naming scheme are excluded from the result,
// never deleted and never counted toward retention. An instance's
// representative timestamp is the oldest member timestamp, so a manifest
// uploaded slightly after its archive cannot skew ordering.
func Group(files []RemoteFileRef, baseName, dateFormat, primaryExt string) (map[string]Instance, error) {
	pattern, err := CompilePattern(baseName, dateFormat, primaryExt)
	if err != nil {
		return nil, err
	}

	instances := make(map[string]Instance)
	for _, file := range files {
		key := pattern.Match(file.Name)
		if key == "" {
			continue
		}

		ts := file.SortTimestamp
		if ts.IsZero() {
			if parsed, ok := pattern.ParseTimestamp(file.Name); ok {
				ts = parsed
			}
		}

		inst, ok := instances[key]
		if !ok {
			inst = Instance{Key: key, Timestamp: ts}
		} else if !ts.IsZero() && (inst.Timestamp.IsZero() || ts.Before(inst.Timestamp)) {
			inst.Timestamp = ts
		}
		inst.Files = append(inst.Files, file)
		instances[key] = inst
	}

	return instances, nil
}

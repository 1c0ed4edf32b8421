// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package logger

import (
	"strings"
	"sync"
)

// Collector buffers emitted log lines so each finished job run can attach
// its own log excerpt to the report. Jobs run sequentially; Drain is called
// between runs.
type Collector struct {
	mu    sync.Mutex
	lines []string
}

// Write implements io.Writer for use as an extra logger sink.
func (c *Collector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			c.lines = append(c.lines, line)
		}
	}
	return len(p), nil
}

// Drain returns the buffered lines and resets the buffer.
func (c *Collector) Drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.lines
	c.lines = nil
	return lines
}

// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package testutils holds helpers shared by the tests of several packages.
package testutils

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

// Logger is a logger that writes to a testing.TB and remembers the messages
// logged at error level, so tests can assert on failures that are logged
// rather than returned.
type Logger struct {
	T testing.TB

	mu struct {
		sync.Mutex
		errors []string
	}
}

// NewLogger returns a Logger writing to t.
func NewLogger(t testing.TB) *Logger {
	return &Logger{T: t}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.T.Logf(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	l.mu.errors = append(l.mu.errors, msg)
	l.mu.Unlock()
	l.T.Log(msg)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.T.Helper()
	l.T.Fatalf(format, args...)
}

// Errors returns the messages logged at error level, one per line.
func (l *Logger) Errors() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var b strings.Builder
	for _, m := range l.mu.errors {
		fmt.Fprintln(&b, m)
	}
	return b.String()
}

// ErrorCount returns the number of messages logged at error level.
func (l *Logger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.mu.errors)
}

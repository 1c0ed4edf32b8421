// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package secrets resolves archive passwords and keeps them in wipeable
// buffers so every exit path of a job run can zero the material.
package secrets

// Secret holds sensitive bytes that must be zeroed when no longer needed.
// The zero value is an empty secret.
type Secret struct {
	data []byte
}

// NewSecret copies value into a fresh buffer. The caller keeps ownership of
// the input slice.
func NewSecret(value []byte) *Secret {
	buf := make([]byte, len(value))
	copy(buf, value)
	return &Secret{data: buf}
}

// NewSecretFromString copies a string's bytes. The original string cannot be
// wiped; callers should avoid holding plain-text passwords in strings longer
// than necessary.
func NewSecretFromString(value string) *Secret {
	return NewSecret([]byte(value))
}

// IsEmpty reports whether the secret carries any material.
func (s *Secret) IsEmpty() bool {
	return s == nil || len(s.data) == 0
}

// String exposes the secret as a string for consumers such as the
// compression engine command line.
func (s *Secret) String() string {
	if s == nil {
		return ""
	}
	return string(s.data)
}

// Wipe zeroes the buffer. Safe on nil and safe to call repeatedly.
func (s *Secret) Wipe() {
	if s == nil {
		return
	}
	zeroBytes(s.data)
	s.data = nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

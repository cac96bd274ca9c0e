// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateRunes_ASCII(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"short", "/health", 20, "/health"},
		{"exact", "/abc", 4, "/abc"},
		{"truncated", "/a/very/long/path", 10, "/a/very..."},
		{"tiny limit", "/abcdef", 3, "/ab"},
		{"zero", "/abc", 0, ""},
		{"negative", "/abc", -1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateRunes(tt.input, tt.max))
		})
	}
}

func TestTruncateRunes_UTF8(t *testing.T) {
	got := TruncateRunes("/héllo/wörld/日本語", 9)
	assert.Equal(t, "/héllo...", got)
	assert.Equal(t, 9, len([]rune(got)))
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input  string
		want   bool
		wantOK bool
	}{
		{"1", true, true},
		{"true", true, true},
		{"TRUE", true, true},
		{" yes ", true, true},
		{"on", true, true},
		{"0", false, true},
		{"false", false, true},
		{"No", false, true},
		{"off", false, true},
		{"", false, false},
		{"maybe", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseBool(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

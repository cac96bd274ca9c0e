// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/sebhosting/seb-ultra-stack/internal/config"
)

// capture records what the downstream handler saw.
type capture struct {
	called bool
	value  any
	ok     bool
	raw    json.RawMessage
	body   string
}

func (c *capture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.called = true
		c.value, c.ok = JSONBody(r)
		c.raw, _ = RawJSONBody(r)
		b, _ := io.ReadAll(r.Body)
		c.body = string(b)
		w.WriteHeader(http.StatusOK)
	})
}

func postJSON(t *testing.T, cfg config.JSONConfig, contentType, body string) (*httptest.ResponseRecorder, *capture) {
	t.Helper()
	c := &capture{}
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	JSONBodyMiddleware(cfg)(c.handler()).ServeHTTP(w, req)
	return w, c
}

func TestJSONBody_Object(t *testing.T) {
	w, c := postJSON(t, config.Default().JSON, "application/json", `{"name": "seb", "count": 3}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, c.ok)

	obj, ok := c.value.(map[string]any)
	require.True(t, ok, "value = %T", c.value)
	assert.Equal(t, "seb", obj["name"])
	assert.Equal(t, json.Number("3"), obj["count"])
	assert.JSONEq(t, `{"name": "seb", "count": 3}`, string(c.raw))
	assert.Equal(t, string(c.raw), c.body, "r.Body should replay the parsed bytes")
}

func TestJSONBody_Array(t *testing.T) {
	w, c := postJSON(t, config.Default().JSON, "application/json; charset=utf-8", `[1, "two", null]`)

	require.Equal(t, http.StatusOK, w.Code)
	arr, ok := c.value.([]any)
	require.True(t, ok)
	assert.Len(t, arr, 3)
}

func TestJSONBody_EmptyBody(t *testing.T) {
	w, c := postJSON(t, config.Default().JSON, "application/json", "")

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, c.ok)
	assert.Equal(t, map[string]any{}, c.value)
}

func TestJSONBody_NonJSONContentTypePassesThrough(t *testing.T) {
	for _, ct := range []string{"", "text/plain", "application/x-www-form-urlencoded", "application/jsonx", "application/vnd.api+json", "not a / media type;;"} {
		t.Run(ct, func(t *testing.T) {
			w, c := postJSON(t, config.Default().JSON, ct, `{not json at all`)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.True(t, c.called)
			assert.False(t, c.ok)
			assert.Equal(t, `{not json at all`, c.body)
		})
	}
}

func TestJSONBody_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"malformed", "application/json", `{"a":`, http.StatusBadRequest},
		{"trailing garbage", "application/json", `{"a": 1} x`, http.StatusBadRequest},
		{"scalar in strict mode", "application/json", `"just a string"`, http.StatusBadRequest},
		{"number in strict mode", "application/json", `42`, http.StatusBadRequest},
		{"whitespace only", "application/json", "   \n", http.StatusBadRequest},
		{"unsupported charset", "application/json; charset=latin1", `{"a": 1}`, http.StatusUnsupportedMediaType},
		{"uppercase media type still parsed", "Application/JSON", `{"a":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, c := postJSON(t, config.Default().JSON, tt.contentType, tt.body)

			assert.Equal(t, tt.want, w.Code)
			assert.False(t, c.called, "handler must not run for a rejected body")
		})
	}
}

func TestJSONBody_NonStrictAcceptsScalars(t *testing.T) {
	cfg := config.Default().JSON
	cfg.Strict = false

	w, c := postJSON(t, cfg, "application/json", `"hello"`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", c.value)
}

func TestJSONBody_TooLarge(t *testing.T) {
	cfg := config.JSONConfig{LimitBytes: 16, Strict: true}
	body := `{"key": "` + strings.Repeat("x", 64) + `"}`

	w, c := postJSON(t, cfg, "application/json", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.False(t, c.called)
}

func TestJSONBody_TooLargeWithoutContentLength(t *testing.T) {
	cfg := config.JSONConfig{LimitBytes: 16, Strict: true}
	body := `{"key": "` + strings.Repeat("x", 64) + `"}`

	c := &capture{}
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = -1
	w := httptest.NewRecorder()
	JSONBodyMiddleware(cfg)(c.handler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.False(t, c.called)
}

func TestJSONBody_AtLimit(t *testing.T) {
	body := `{"k": "v"}`
	cfg := config.JSONConfig{LimitBytes: int64(len(body)), Strict: true}

	w, c := postJSON(t, cfg, "application/json", body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, c.ok)
}

func TestJSONBody_ZeroLimitIsUnlimited(t *testing.T) {
	cfg := config.JSONConfig{LimitBytes: 0, Strict: true}
	body := `{"key": "` + strings.Repeat("x", 2*config.DefaultJSONLimit) + `"}`

	c := &capture{}
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = -1
	w := httptest.NewRecorder()
	JSONBodyMiddleware(cfg)(c.handler()).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, c.ok)
	assert.Len(t, c.body, len(body))
}

func TestJSONBody_UTF16(t *testing.T) {
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String(`{"greeting": "héllo"}`)
	require.NoError(t, err)

	w, c := postJSON(t, config.Default().JSON, "application/json; charset=utf-16le", encoded)

	require.Equal(t, http.StatusOK, w.Code)
	obj, ok := c.value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "héllo", obj["greeting"])
}

func TestJSONBody_UTF8BOM(t *testing.T) {
	w, c := postJSON(t, config.Default().JSON, "application/json", "\xEF\xBB\xBF{\"a\": true}")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"a": true}, c.value)
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	var got payload
	var decodeErr error
	h := JSONBodyMiddleware(config.Default().JSON)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeErr = DecodeJSONBody(r, &got)
	}))

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name": "seb", "count": 7}`))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NoError(t, decodeErr)
	assert.Equal(t, payload{Name: "seb", Count: 7}, got)
}

func TestDecodeJSONBody_NoBody(t *testing.T) {
	var v map[string]any
	err := DecodeJSONBody(httptest.NewRequest("GET", "/", nil), &v)
	assert.True(t, errors.Is(err, ErrNoJSONBody))

	_, ok := JSONBody(httptest.NewRequest("GET", "/", nil))
	assert.False(t, ok)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/sebhosting/seb-ultra-stack/internal/config"
	"github.com/sebhosting/seb-ultra-stack/internal/util"
)

// ErrNoJSONBody is returned by DecodeJSONBody when the request carried no
// parsed JSON body.
var ErrNoJSONBody = errors.New("request has no JSON body")

type jsonBodyKey struct{}

// parsedBody is what JSONBodyMiddleware stores in the request context.
type parsedBody struct {
	raw   json.RawMessage
	value any
}

// bodyError pairs a rejection with the status it is answered with.
type bodyError struct {
	status int
	err    error
}

func (e *bodyError) Error() string { return e.err.Error() }
func (e *bodyError) Unwrap() error { return e.err }

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// JSONBodyMiddleware returns HTTP middleware that parses application/json
// request bodies before routing.
//
// Requests of any other media type pass through untouched. For JSON requests:
//   - an empty body is parsed as an empty object
//   - a body larger than cfg.LimitBytes is rejected with 413 (0 means no limit)
//   - a charset other than utf-8/utf-16 is rejected with 415
//   - malformed JSON, or a scalar top-level value in strict mode, is rejected with 400
//
// The parsed body is available through JSONBody, RawJSONBody and
// DecodeJSONBody, and r.Body is replaced with the decoded UTF-8 bytes.
func JSONBodyMiddleware(cfg config.JSONConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "application/json" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := readJSONBody(w, r, cfg, params["charset"])
			if err != nil {
				status := http.StatusBadRequest
				var be *bodyError
				if errors.As(err, &be) {
					status = be.status
				}
				log.Printf("JSON_BODY_REJECTED | method=%s path=%s status=%d error=%v",
					r.Method, util.TruncateRunes(r.URL.Path, maxLoggedPathRunes), status, err)
				http.Error(w, http.StatusText(status), status)
				return
			}

			r = r.WithContext(context.WithValue(r.Context(), jsonBodyKey{}, body))
			r.Body = io.NopCloser(bytes.NewReader(body.raw))
			r.ContentLength = int64(len(body.raw))
			next.ServeHTTP(w, r)
		})
	}
}

func readJSONBody(w http.ResponseWriter, r *http.Request, cfg config.JSONConfig, charset string) (*parsedBody, error) {
	if r.ContentLength == 0 || r.Body == nil || r.Body == http.NoBody {
		return &parsedBody{raw: json.RawMessage("{}"), value: map[string]any{}}, nil
	}

	if cfg.LimitBytes > 0 && r.ContentLength > cfg.LimitBytes {
		return nil, &bodyError{
			status: http.StatusRequestEntityTooLarge,
			err:    fmt.Errorf("content length %d exceeds limit %d", r.ContentLength, cfg.LimitBytes),
		}
	}

	var reader io.Reader = r.Body
	if cfg.LimitBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, cfg.LimitBytes)
	}

	reader, err := decodeCharset(reader, charset)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, &bodyError{
				status: http.StatusRequestEntityTooLarge,
				err:    fmt.Errorf("body exceeds limit %d", maxErr.Limit),
			}
		}
		return nil, &bodyError{status: http.StatusBadRequest, err: fmt.Errorf("failed to read body: %w", err)}
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if len(data) == 0 {
		return &parsedBody{raw: json.RawMessage("{}"), value: map[string]any{}}, nil
	}

	if cfg.Strict {
		trimmed := bytes.TrimLeft(data, " \t\r\n")
		if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
			return nil, &bodyError{
				status: http.StatusBadRequest,
				err:    errors.New("top-level JSON value must be an object or array"),
			}
		}
	}

	if !json.Valid(data) {
		return nil, &bodyError{status: http.StatusBadRequest, err: errors.New("malformed JSON")}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, &bodyError{status: http.StatusBadRequest, err: fmt.Errorf("failed to decode JSON: %w", err)}
	}

	return &parsedBody{raw: json.RawMessage(data), value: value}, nil
}

// decodeCharset wraps reader so that it yields UTF-8.
func decodeCharset(reader io.Reader, charset string) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8":
		return reader, nil
	case "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Reader(reader), nil
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Reader(reader), nil
	case "utf-16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Reader(reader), nil
	default:
		return nil, &bodyError{
			status: http.StatusUnsupportedMediaType,
			err:    fmt.Errorf("unsupported charset %q", charset),
		}
	}
}

// JSONBody returns the decoded JSON body: map[string]any, []any, or for
// non-strict configs a scalar. Numbers are json.Number.
func JSONBody(r *http.Request) (any, bool) {
	body, ok := r.Context().Value(jsonBodyKey{}).(*parsedBody)
	if !ok {
		return nil, false
	}
	return body.value, true
}

// RawJSONBody returns the body bytes as received, converted to UTF-8.
func RawJSONBody(r *http.Request) (json.RawMessage, bool) {
	body, ok := r.Context().Value(jsonBodyKey{}).(*parsedBody)
	if !ok {
		return nil, false
	}
	return body.raw, true
}

// DecodeJSONBody unmarshals the parsed body into v.
func DecodeJSONBody(r *http.Request, v any) error {
	raw, ok := RawJSONBody(r)
	if !ok {
		return ErrNoJSONBody
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode JSON body: %w", err)
	}
	return nil
}

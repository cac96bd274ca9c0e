// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/sebhosting/seb-ultra-stack/internal/config"
)

// CORSMiddleware returns HTTP middleware that applies the cross-origin policy.
//
// Origin checks and preflight handling are delegated to rs/cors. Preflight
// requests are answered with 204 and never reach the router.
//
// With the permissive "*" policy, Access-Control-Allow-Origin: * is set before
// rs/cors runs, so every response carries it: requests without an Origin,
// methods outside AllowedMethods, and rejected preflights alike.
func CORSMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:       cfg.AllowedOrigins,
		AllowedMethods:       cfg.AllowedMethods,
		AllowedHeaders:       cfg.AllowedHeaders,
		ExposedHeaders:       cfg.ExposedHeaders,
		AllowCredentials:     cfg.AllowCredentials,
		MaxAge:               cfg.MaxAge,
		OptionsSuccessStatus: http.StatusNoContent,
	})
	anyOrigin := cfg.AllowsAnyOrigin()

	return func(next http.Handler) http.Handler {
		h := c.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if anyOrigin {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			h.ServeHTTP(w, r)
		})
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the greeting HTTP server.
//
// # Endpoints
//
//   - GET /  - returns "Hello, world!" as text/html
//
// Every other path, and every other method on "/", answers 404.
//
// # Middleware
//
// Applied to every request, outermost first:
//
//   - Panic recovery with stack trace logging
//   - X-Request-Id propagation
//   - Request logging (toggled by config reload), with the client IP taken
//     from forwarding headers only when sent by a trusted proxy
//   - Security headers (X-Content-Type-Options, X-Frame-Options, Referrer-Policy)
//   - CORS, permissive by default: Access-Control-Allow-Origin: *
//   - JSON body parsing for application/json requests
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	srv := server.New(cfg)
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
//
// Handlers read the parsed body with JSONBody, RawJSONBody or DecodeJSONBody.
package server

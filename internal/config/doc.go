// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for the greeting server.
//
// Configuration works without any file: the built-in defaults plus the PORT
// environment variable describe the whole server. An optional TOML (or JSON)
// file can be named with SEB_CONFIG.
//
// # Key Types
//
//   - Config: Main configuration structure
//   - ServerConfig: Listener address, timeouts and response headers
//   - CORSConfig: Cross-origin policy
//   - JSONConfig: Request body parsing limits
//   - LogConfig: Request logging
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (PORT, SEB_*)
//   - The file named by SEB_CONFIG, if any
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	addr := cfg.Server.Addr()
package config

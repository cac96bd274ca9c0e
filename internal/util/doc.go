// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the config and server packages.
//
//   - TruncateRunes: UTF-8 safe truncation with ellipsis, used for log lines
//   - ParseBool: lenient boolean parsing for environment flags
package util

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by askchat packages.
//
// # Files
//
//   - atomic.go: crash-safe file writes (temp file, fsync, rename)
//   - text.go: rune- and display-width-aware truncation
//
// # Usage
//
//	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
//	    return err
//	}
//	preview := util.TruncateWidth(question, 40)
package util

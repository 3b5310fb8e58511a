// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses askchat's command line and runs the non-interactive
// commands.
//
// Usage:
//
//	askchat                        Start the terminal UI (default)
//	askchat config [show|get|set|keys|path]
//	askchat export [--format md|txt] [--width N]
//	askchat status [--json]
//	askchat logout
//	askchat version
//
// Commands that touch the session or conversation run against the same
// persisted snapshots the terminal UI uses.
package cli

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is the top-level command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdConfig
	CmdExport
	CmdStatus
	CmdLogout
	CmdVersion
	CmdHelp
)

// String returns the command name as typed on the command line.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdConfig:
		return "config"
	case CmdExport:
		return "export"
	case CmdStatus:
		return "status"
	case CmdLogout:
		return "logout"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

const usageText = `askchat - ask questions from the terminal

Usage:
  askchat                          Start the terminal UI (default)
  askchat config [subcommand]      View and modify configuration
  askchat export [flags]           Print the current chat history
  askchat status [--json]          Show session and storage status
  askchat logout                   End the saved session
  askchat version                  Show version information

Config Commands:
  askchat config show [--json]     Show the effective configuration
  askchat config get <key>         Print one value (e.g. api.base_url)
  askchat config set <key> <value> Write a value to config.toml
  askchat config keys              List every key
  askchat config path              Show the config file location

Export Flags:
  --format md|txt                  Markdown (default) or compact transcript
  --width N                        Line width for txt (default: 80)
  --output FILE                    Write to FILE instead of stdout

Global Flags:
  -v, --verbose                    Debug logging to the log file
  -h, --help                       Show this help

Environment:
  ASKCHAT_API_URL, ASKCHAT_STORAGE_BACKEND, ASKCHAT_DATA_DIR,
  ASKCHAT_STORAGE_PASSPHRASE, ASKCHAT_LOG_LEVEL, ASKCHAT_CHECK_INTERVAL

Version: %s
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "askchat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// Parse maps argv (without the program name) to a command and the parsed
// arguments that follow it. Global flags may appear anywhere.
func Parse(argv []string) (Command, *ArgParser, error) {
	if len(argv) == 0 {
		return CmdTUI, NewArgParser(nil), nil
	}

	all := NewArgParser(argv)
	if all.BoolFlag("help") || all.BoolFlag("h") {
		return CmdHelp, all, nil
	}

	name := all.Subcommand()
	rest := NewArgParser(withoutFirstPositional(argv))
	switch name {
	case "":
		return CmdTUI, rest, nil
	case "config":
		return CmdConfig, rest, nil
	case "export":
		return CmdExport, rest, nil
	case "status", "s":
		return CmdStatus, rest, nil
	case "logout":
		return CmdLogout, rest, nil
	case "version":
		return CmdVersion, rest, nil
	case "help":
		return CmdHelp, rest, nil
	default:
		return CmdHelp, rest, fmt.Errorf("unknown command %q", name)
	}
}

// withoutFirstPositional drops the command name from argv, keeping flags.
func withoutFirstPositional(argv []string) []string {
	out := make([]string, 0, len(argv))
	dropped := false
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if !dropped && (len(arg) == 0 || arg[0] != '-') {
			dropped = true
			continue
		}
		out = append(out, arg)
	}
	return out
}

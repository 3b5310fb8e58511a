// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeranaias/askchat/internal/config"
	"github.com/jeranaias/askchat/internal/conversation"
	"github.com/jeranaias/askchat/internal/session"
	"github.com/jeranaias/askchat/internal/util"
)

// ErrUsage marks a malformed command line.
var ErrUsage = errors.New("usage error")

// Env is what the commands run against. Stores are nil for commands that do
// not open storage.
type Env struct {
	Config     *config.Config
	ConfigPath string

	Sessions     *session.Store
	Conversation *conversation.Store
	Supervisor   *session.Supervisor

	Out io.Writer
}

func (e *Env) out() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}

// NeedsStorage reports whether cmd reads or writes persisted snapshots.
func NeedsStorage(cmd Command) bool {
	switch cmd {
	case CmdTUI, CmdExport, CmdStatus, CmdLogout:
		return true
	}
	return false
}

// =============================================================================
// CONFIG
// =============================================================================

// HandleConfig runs "config [show|get|set|keys|path]".
func HandleConfig(env *Env, args *ArgParser) error {
	w := env.out()
	switch args.Subcommand() {
	case "", "show":
		if args.BoolFlag("json") {
			return writeJSON(w, env.Config)
		}
		fmt.Fprintln(w, TitleStyle.Render("askchat configuration"))
		keys := config.GetAllKeys()
		for _, key := range keys {
			value, err := env.Config.Get(key)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s %s\n", LabelStyle.Render(key), ValueStyle.Render(maskIfSecret(key, value)))
		}
		return nil

	case "get":
		key := args.Positional(1)
		if key == "" {
			return fmt.Errorf("%w: config get <key>", ErrUsage)
		}
		value, err := env.Config.Get(key)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, maskIfSecret(key, value))
		return nil

	case "set":
		key, value := args.Positional(1), args.Positional(2)
		if key == "" || args.PositionalCount() < 3 {
			return fmt.Errorf("%w: config set <key> <value>", ErrUsage)
		}
		if err := setConfigValue(env.ConfigPath, key, value); err != nil {
			return err
		}
		fmt.Fprintln(w, SuccessStyle.Render("Set "+key))
		return nil

	case "keys":
		keys := config.GetAllKeys()
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintln(w, key)
		}
		return nil

	case "path":
		fmt.Fprintln(w, env.ConfigPath)
		return nil

	default:
		return fmt.Errorf("%w: unknown config subcommand %q", ErrUsage, args.Subcommand())
	}
}

// setConfigValue edits the file on disk only, so environment overrides in
// effect for this run are not persisted.
func setConfigValue(path, key, value string) error {
	if path == "" {
		return errors.New("no config file path")
	}
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return err
		}
	}
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return config.SaveTOML(cfg, path)
}

func maskIfSecret(key string, value interface{}) string {
	s := fmt.Sprint(value)
	if strings.HasSuffix(key, "passphrase") && s != "" {
		return "[REDACTED]"
	}
	return s
}

// =============================================================================
// EXPORT
// =============================================================================

// HandleExport prints the persisted chat history. The session is checked
// first, so an expired or absent identity exports nothing.
func HandleExport(env *Env, args *ArgParser) error {
	if env.Conversation == nil || env.Supervisor == nil {
		return errors.New("conversation store not available")
	}
	env.Supervisor.Activate()

	var text string
	switch format := args.Flag("format"); format {
	case "", "md", "markdown":
		text = env.Conversation.ExportMarkdown()
		if text == "" {
			text = "No messages yet.\n"
		}
	case "txt", "text":
		text = conversation.FormatTranscript(env.Conversation.Turns(), args.FlagInt("width", 80))
	default:
		return fmt.Errorf("%w: unknown export format %q", ErrUsage, format)
	}

	if path := args.Flag("output"); path != "" {
		if err := util.AtomicWriteFile(path, []byte(text), 0600); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		fmt.Fprintln(env.out(), SuccessStyle.Render("Exported to "+path))
		return nil
	}
	_, err := io.WriteString(env.out(), text)
	return err
}

// =============================================================================
// STATUS
// =============================================================================

// StatusReport is the "status --json" payload.
type StatusReport struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	ExpiresIn     string `json:"expires_in,omitempty"`
	Messages      int    `json:"messages"`
	APIURL        string `json:"api_url"`
	Storage       string `json:"storage"`
}

// HandleStatus checks the session and reports it. An expired session is
// logged out and an absent one has its conversation cleared, exactly as the
// terminal UI would on startup.
func HandleStatus(env *Env, args *ArgParser) error {
	if env.Supervisor == nil || env.Conversation == nil {
		return errors.New("session store not available")
	}
	env.Supervisor.Activate()
	st := env.Supervisor.Status()

	report := StatusReport{
		Authenticated: st.Authenticated,
		Username:      st.Username,
		Messages:      env.Conversation.Len(),
		APIURL:        env.Config.API.BaseURL,
		Storage:       env.Config.Storage.Backend,
	}
	if st.HasExpiry {
		report.ExpiresIn = session.FormatDuration(st.Remaining)
	}

	w := env.out()
	if args.BoolFlag("json") {
		return writeJSON(w, report)
	}

	fmt.Fprintln(w, TitleStyle.Render("askchat status"))
	if report.Authenticated {
		fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Signed in as"), SuccessStyle.Render(report.Username))
		if report.ExpiresIn != "" {
			fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Session expires in"), ValueStyle.Render(report.ExpiresIn))
		}
	} else {
		fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Signed in as"), DimStyle.Render("(anonymous)"))
	}
	fmt.Fprintf(w, "%s %d\n", LabelStyle.Render("Messages"), report.Messages)
	fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("API"), ValueStyle.Render(report.APIURL))
	fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Storage"), ValueStyle.Render(report.Storage))
	return nil
}

// =============================================================================
// LOGOUT
// =============================================================================

// HandleLogout ends the saved session and clears the chat history.
func HandleLogout(env *Env) error {
	if env.Sessions == nil {
		return errors.New("session store not available")
	}
	w := env.out()
	if !env.Sessions.IsAuthenticated() {
		fmt.Fprintln(w, DimStyle.Render("Not logged in."))
		return nil
	}
	env.Sessions.Logout()
	fmt.Fprintln(w, SuccessStyle.Render("Logged out."))
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

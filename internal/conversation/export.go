// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"strconv"
	"strings"

	"github.com/jeranaias/askchat/internal/util"
)

// ExportMarkdown renders the conversation as Markdown, one section per turn.
func (s *Store) ExportMarkdown() string {
	return RenderMarkdown("Chat History", s.Turns())
}

// RenderMarkdown renders turns under a level-two heading.
func RenderMarkdown(title string, turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## " + title + "\n\n")
	for _, t := range turns {
		sb.WriteString("**Q:** " + t.Question + "\n\n")
		sb.WriteString("**A:** " + t.Answer + "\n\n")
		sb.WriteString("---\n\n")
	}
	return sb.String()
}

// FormatTranscript lists turns one per line with truncated previews, for
// narrow displays.
func FormatTranscript(turns []Turn, width int) string {
	if len(turns) == 0 {
		return "No messages yet."
	}
	if width < 20 {
		width = 20
	}
	var sb strings.Builder
	for i, t := range turns {
		prefix := strconv.Itoa(i+1) + ". "
		sb.WriteString(prefix + util.TruncateWidth(util.OneLine(t.Question), width-len(prefix)) + "\n")
		sb.WriteString("   " + util.TruncateWidth(util.OneLine(t.Answer), width-3) + "\n")
	}
	return sb.String()
}

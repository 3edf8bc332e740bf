// Package ui renders terminal output for acat: status symbols, styled
// guids and paths, aligned tables and a spinner.
//
// Color is used sparingly. Accent marks guids and paths, Muted marks hints;
// success and failure are carried by symbols, not color.
package ui

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const defaultAccent = "#5EEAD4"

var (
	Accent = accentStyle(defaultAccent)
	Muted  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C8190"))
	Bold   = lipgloss.NewStyle().Bold(true)

	themeMu sync.Mutex
)

func accentStyle(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

// ConfigureTheme sets the accent color from the ui.accent config value:
// an ANSI code ("0"-"255") or hex ("#abc", "#aabbcc"). Anything else,
// including "none", restores the default.
func ConfigureTheme(accent string) {
	themeMu.Lock()
	defer themeMu.Unlock()
	color, ok := parseColor(accent)
	if !ok {
		color = defaultAccent
	}
	Accent = accentStyle(color)
}

func parseColor(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if hex, isHex := strings.CutPrefix(s, "#"); isHex {
		if len(hex) == 3 {
			hex = fmt.Sprintf("%c%c%c%c%c%c", hex[0], hex[0], hex[1], hex[1], hex[2], hex[2])
		}
		if len(hex) != 6 {
			return "", false
		}
		if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
			return "", false
		}
		return "#" + hex, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 255 {
		return "", false
	}
	return strconv.Itoa(n), true
}

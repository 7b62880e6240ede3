package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirmation describes a destructive operation the user must approve
type Confirmation struct {
	Title    string
	Warnings []string

	// Phrase must be typed exactly to proceed
	Phrase string
}

// ResetConfirmation guards erasing a device's stored settings
func ResetConfirmation(address string) Confirmation {
	return Confirmation{
		Title: "ERASE DEVICE SETTINGS",
		Warnings: []string{
			"The device at " + address + " will forget its WiFi and MQTT settings",
			"After its next reboot it opens its own hotspot and stops publishing readings",
			"You will need to join the hotspot to configure it again",
		},
		Phrase: "RESET",
	}
}

// Confirm prints the warning box to out and reads one line from in.
// It returns true only when the line equals the phrase.
func Confirm(in io.Reader, out io.Writer, c Confirmation) bool {
	width := GetTerminalWidth()

	lines := []string{
		"",
		WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, c.Title)),
		"",
	}
	bullet := lipgloss.NewStyle().Foreground(TextColor)
	for _, w := range c.Warnings {
		lines = append(lines, bullet.Render("   • "+w))
	}
	lines = append(lines, "")

	_, _ = fmt.Fprintln(out, boxStyle(width, WarningColor).Render(strings.Join(lines, "\n")))
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprint(out, WarningTitleStyle.Render(fmt.Sprintf("To proceed, type %q and press Enter: ", c.Phrase)))

	input, err := bufio.NewReader(in).ReadString('\n')
	_, _ = fmt.Fprintln(out)
	if err != nil && input == "" {
		return false
	}
	if strings.TrimSpace(input) == c.Phrase {
		return true
	}

	_, _ = fmt.Fprintln(out, lipgloss.NewStyle().Foreground(MutedColor).Render("  Operation cancelled."))
	return false
}

package banner

import (
	"github.com/charmbracelet/lipgloss"

	"sweepq/internal/tui/styles"
)

const ascii = `

  ______      _____  ___  ____  ___ _
 / ___/ | /| / / _ \/ _ \/ __ \/ _ '/
(__  )| |/ |/ /  __/  __/ /_/ / (_| |
/____/ |__/|__/\___/\___/ .___/\__, |
                       /_/       /_/  `

// GetString renders the banner for the terminal the program writes to.
func GetString() string {
	style := lipgloss.DefaultRenderer().NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	return "\n" + style.Render(ascii) + "\n" + styles.Subtle.Render("  find the concurrency your service handles best") + "\n"
}

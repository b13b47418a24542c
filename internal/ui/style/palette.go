package style

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	Cyan   = lipgloss.Color("#00E5FF") // Primary highlight
	Yellow = lipgloss.Color("#FFB500") // Warnings
	Green  = lipgloss.Color("#2AFFAA") // Success
	Red    = lipgloss.Color("#FF5555") // Errors
	Blue   = lipgloss.Color("#3B82F6") // Info / links

	Base01 = lipgloss.Color("#6C7280") // Muted text
	Base2  = lipgloss.Color("#ECEFF4") // Primary text
)

// Palette provides a centralized color management
type Palette struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Warning lipgloss.Color
	Info    lipgloss.Color
	Text    lipgloss.Color
	Muted   lipgloss.Color
}

// DefaultPalette returns the default color palette
func DefaultPalette() Palette {
	return Palette{
		Primary: Cyan,
		Success: Green,
		Error:   Red,
		Warning: Yellow,
		Info:    Blue,
		Text:    Base2,
		Muted:   Base01,
	}
}

// StatusStyles - стили строк статуса dispatch.
type StatusStyles struct {
	Seq       lipgloss.Style
	Stage     lipgloss.Style
	Text      lipgloss.Style
	Success   lipgloss.Style
	Failure   lipgloss.Style
	Signature lipgloss.Style
	Label     lipgloss.Style
}

// NewStatusStyles creates status styles with the given palette
func NewStatusStyles(palette Palette) StatusStyles {
	return StatusStyles{
		Seq: lipgloss.NewStyle().
			Foreground(palette.Muted),

		Stage: lipgloss.NewStyle().
			Foreground(palette.Primary).
			Bold(true).
			Width(12),

		Text: lipgloss.NewStyle().
			Foreground(palette.Text),

		Success: lipgloss.NewStyle().
			Foreground(palette.Success).
			Bold(true),

		Failure: lipgloss.NewStyle().
			Foreground(palette.Error).
			Bold(true),

		Signature: lipgloss.NewStyle().
			Foreground(palette.Info),

		Label: lipgloss.NewStyle().
			Foreground(palette.Muted).
			PaddingRight(1),
	}
}

package ui

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	Green      = lipgloss.Color("#16a34a")
	DarkGreen  = lipgloss.Color("#15803d")
	LightGreen = lipgloss.Color("#f0fdf4")
	Gray       = lipgloss.Color("#6b7280")
	Red        = lipgloss.Color("#ef4444")
	White      = lipgloss.Color("#ffffff")
)

// Styles groups the lipgloss styles used by the views.
type Styles struct {
	Header    lipgloss.Style
	Tagline   lipgloss.Style
	Tab       lipgloss.Style
	ActiveTab lipgloss.Style
	Heading   lipgloss.Style
	Label     lipgloss.Style
	Focused   lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	Result    lipgloss.Style
	UserMsg   lipgloss.Style
	BotMsg    lipgloss.Style
	Pending   lipgloss.Style
	Spinner   lipgloss.Style
	Footer    lipgloss.Style
}

// DefaultStyles returns the green EarthMate theme.
func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(White).Background(Green).Padding(0, 2),
		Tagline:   lipgloss.NewStyle().Foreground(Gray).Italic(true),
		Tab:       lipgloss.NewStyle().Foreground(Gray).Padding(0, 2),
		ActiveTab: lipgloss.NewStyle().Bold(true).Foreground(White).Background(DarkGreen).Padding(0, 2),
		Heading:   lipgloss.NewStyle().Bold(true).Foreground(DarkGreen),
		Label:     lipgloss.NewStyle().Bold(true),
		Focused:   lipgloss.NewStyle().Bold(true).Foreground(Green),
		Muted:     lipgloss.NewStyle().Foreground(Gray),
		Error:     lipgloss.NewStyle().Foreground(Red),
		Result: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Green).
			Padding(0, 1),
		UserMsg: lipgloss.NewStyle().Bold(true).Foreground(Green),
		BotMsg:  lipgloss.NewStyle().Bold(true).Foreground(DarkGreen),
		Pending: lipgloss.NewStyle().Italic(true).Foreground(Gray),
		Spinner: lipgloss.NewStyle().Foreground(Green),
		Footer:  lipgloss.NewStyle().Foreground(Gray),
	}
}

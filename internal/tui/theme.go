package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds the dashboard colours and pre-built styles.
type Theme struct {
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Danger  lipgloss.Color
	Warning lipgloss.Color
	Success lipgloss.Color
	Muted   lipgloss.Color
	Text    lipgloss.Color
	Border  lipgloss.Color

	TitleStyle       lipgloss.Style
	ActiveTabStyle   lipgloss.Style
	InactiveTabStyle lipgloss.Style
	SidebarStyle     lipgloss.Style
	NoticeStyle      lipgloss.Style
	ErrorStyle       lipgloss.Style
	SuccessStyle     lipgloss.Style
	WarningStyle     lipgloss.Style
	MutedStyle       lipgloss.Style
	CursorStyle      lipgloss.Style
	DangerStyle      lipgloss.Style
}

// KitchenTheme is the default dark theme.
func KitchenTheme() Theme {
	t := Theme{
		Primary: lipgloss.Color("#F97316"),
		Accent:  lipgloss.Color("#FACC15"),
		Danger:  lipgloss.Color("#EF4444"),
		Warning: lipgloss.Color("#F59E0B"),
		Success: lipgloss.Color("#22C55E"),
		Muted:   lipgloss.Color("#6B7280"),
		Text:    lipgloss.Color("#E5E7EB"),
		Border:  lipgloss.Color("#374151"),
	}

	t.TitleStyle = lipgloss.NewStyle().Foreground(t.Primary).Bold(true)
	t.ActiveTabStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#111827")).
		Background(t.Primary).
		Padding(0, 1).
		Bold(true)
	t.InactiveTabStyle = lipgloss.NewStyle().Foreground(t.Muted).Padding(0, 1)
	t.SidebarStyle = lipgloss.NewStyle().
		Foreground(t.Text).
		BorderRight(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(t.Border).
		PaddingRight(1)
	t.NoticeStyle = lipgloss.NewStyle().Foreground(t.Accent)
	t.ErrorStyle = lipgloss.NewStyle().Foreground(t.Danger).Bold(true)
	t.SuccessStyle = lipgloss.NewStyle().Foreground(t.Success)
	t.WarningStyle = lipgloss.NewStyle().Foreground(t.Warning)
	t.MutedStyle = lipgloss.NewStyle().Foreground(t.Muted)
	t.CursorStyle = lipgloss.NewStyle().Foreground(t.Primary).Bold(true)
	t.DangerStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(t.Danger).
		Bold(true).
		Padding(0, 1)
	return t
}

// PlainTheme renders without colour, for --no-color and dumb terminals.
func PlainTheme() Theme {
	plain := lipgloss.NewStyle()
	return Theme{
		TitleStyle:       plain.Bold(true),
		ActiveTabStyle:   plain.Reverse(true).Padding(0, 1),
		InactiveTabStyle: plain.Padding(0, 1),
		SidebarStyle:     plain.BorderRight(true).BorderStyle(lipgloss.NormalBorder()).PaddingRight(1),
		NoticeStyle:      plain,
		ErrorStyle:       plain.Bold(true),
		SuccessStyle:     plain,
		WarningStyle:     plain,
		MutedStyle:       plain,
		CursorStyle:      plain.Bold(true),
		DangerStyle:      plain.Reverse(true).Padding(0, 1),
	}
}

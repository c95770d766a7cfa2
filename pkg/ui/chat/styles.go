package chat

import "github.com/charmbracelet/lipgloss"

// Palette of the simulator, in 256-color codes.
const (
	colorInk      = lipgloss.Color("16")
	colorCream    = lipgloss.Color("230")
	colorSand     = lipgloss.Color("223")
	colorRust     = lipgloss.Color("130")
	colorWine     = lipgloss.Color("88")
	colorAmber    = lipgloss.Color("214")
	colorTeal     = lipgloss.Color("44")
	colorSage     = lipgloss.Color("109")
	colorMint     = lipgloss.Color("114")
	colorCoral    = lipgloss.Color("203")
	colorAlarm    = lipgloss.Color("160")
	colorMuted    = lipgloss.Color("244")
	colorSoft     = lipgloss.Color("250")
	colorLemon    = lipgloss.Color("229")
	colorBgDeep   = lipgloss.Color("233")
	colorBgDark   = lipgloss.Color("234")
	colorBgPanel  = lipgloss.Color("235")
	colorBgRaised = lipgloss.Color("236")
)

type theme struct {
	header     lipgloss.Style
	headerMeta lipgloss.Style
	divider    lipgloss.Style
	bootLine   lipgloss.Style
	bootDone   lipgloss.Style

	userBox        lipgloss.Style
	userTitle      lipgloss.Style
	assistantBox   lipgloss.Style
	assistantTitle lipgloss.Style
	imageBox       lipgloss.Style
	imageTitle     lipgloss.Style
	errorBox       lipgloss.Style
	errorTitle     lipgloss.Style
	reactions      lipgloss.Style

	status     lipgloss.Style
	statusBusy lipgloss.Style
	statusErr  lipgloss.Style
	hint       lipgloss.Style
	inputLabel lipgloss.Style
	input      lipgloss.Style
	viewport   lipgloss.Style
}

func badge(fg, bg lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(fg).Background(bg).Padding(0, 1)
}

func card(border lipgloss.Border, edge, bg lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Border(border).BorderForeground(edge).Background(bg).Padding(0, 1)
}

func defaultTheme() theme {
	text := lipgloss.NewStyle()

	return theme{
		header:     badge(colorCream, colorWine),
		headerMeta: text.Foreground(colorSand),
		divider:    text.Foreground(colorRust),
		bootLine:   text.Foreground(lipgloss.Color("180")),
		bootDone:   text.Foreground(colorMint).Bold(true),

		userBox:        card(lipgloss.DoubleBorder(), colorAmber, colorBgPanel),
		userTitle:      badge(colorInk, colorAmber),
		assistantBox:   card(lipgloss.DoubleBorder(), colorTeal, colorBgDark),
		assistantTitle: badge(colorInk, colorTeal),
		imageBox:       card(lipgloss.RoundedBorder(), colorSage, colorBgRaised).Foreground(lipgloss.Color("252")),
		imageTitle:     badge(colorInk, colorSage),
		errorBox:       card(lipgloss.DoubleBorder(), colorCoral, lipgloss.Color("52")).Foreground(colorCoral),
		errorTitle:     badge(lipgloss.Color("231"), colorAlarm),
		reactions:      text.Foreground(colorLemon).Background(lipgloss.Color("238")).Padding(0, 1),

		status:     text.Foreground(colorSoft).Bold(true),
		statusBusy: text.Foreground(lipgloss.Color("222")).Bold(true),
		statusErr:  text.Foreground(colorCoral).Bold(true),
		hint:       text.Foreground(colorMuted),
		inputLabel: text.Foreground(colorLemon).Bold(true),
		input:      card(lipgloss.RoundedBorder(), lipgloss.Color("173"), colorBgRaised),
		viewport:   card(lipgloss.ThickBorder(), colorRust, colorBgDeep),
	}
}

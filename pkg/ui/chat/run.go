// Package chat is a terminal stand-in for a chat service. Typed lines go
// through the full message pipeline and reactions and replies are drawn as
// they arrive.
package chat

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// RunInteractive runs the simulator until the user quits. transport must be
// the one the pipeline was built with.
func RunInteractive(ctx context.Context, transport *Transport, handle HandleFunc, session Session, info RuntimeInfo) error {
	model := newModel(ctx, handle, modeInteractive, "", session, info)
	program := tea.NewProgram(model, tea.WithMouseCellMotion())
	transport.Attach(program.Send)
	defer transport.Attach(nil)

	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(renderGoodbyeBanner())
	return nil
}

// RunOneShot sends a single message and exits once it has been handled.
func RunOneShot(ctx context.Context, transport *Transport, handle HandleFunc, session Session, info RuntimeInfo, text string) error {
	model := newModel(ctx, handle, modeOneShot, text, session, info)
	program := tea.NewProgram(model)
	transport.Attach(program.Send)
	defer transport.Attach(nil)

	_, err := program.Run()
	return err
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("88")).
		Padding(1, 2)

	return style.Render("👋 Valor signing off")
}

package main

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tgienger/taskdemo/internal/ui"
	"github.com/tgienger/taskdemo/internal/ui/views"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse and edit sessions in a terminal UI",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	// Log lines would corrupt the alt screen
	a, err := loadApp(io.Discard)
	if err != nil {
		return err
	}
	defer a.Close()

	app := ui.NewApp(views.Backend{
		DB:       a.db,
		Service:  a.service,
		Reader:   a.reader,
		Resolver: a.resolver,
	})
	p := tea.NewProgram(app, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run application: %w", err)
	}
	return nil
}

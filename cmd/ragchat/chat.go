package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragchat/internal/service"
	"ragchat/internal/tui"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "chat [file...]",
		Short: "Start the chat interface, optionally ingesting files first",
		Run:   runChat,
	})
}

func runChat(cmd *cobra.Command, args []string) {
	a := mustApp()
	defer a.close()
	a.openExisting(cmd.Context())

	m := tui.New(a.engine, a.cfg.Index.Dir)
	for _, path := range args {
		fmt.Fprintf(os.Stderr, "ingesting %s...\n", path)
		if err := a.engine.UploadDocument(path); err != nil {
			m.Notify(service.Notice(err))
			continue
		}
		h, err := a.engine.StartIngestion()
		if err != nil {
			m.Notify(service.Notice(err))
			continue
		}
		// the outcome reaches the transcript through the engine's events
		_, _ = h.Wait()
	}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		exitErr("chat", err)
	}
}

package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"ragchat/internal/llm"
	"ragchat/internal/prompt"
)

type command struct {
	name string
	arg  string
}

// parseCommand splits "/name rest of line" into name and argument.
func parseCommand(input string) command {
	input = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), "/"))
	name, arg, _ := strings.Cut(input, " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}
}

const helpText = `/upload <path>   choose a document (.txt .md .pdf .docx)
/ingest [path]   ingest the chosen document, or path
/open [dir]      open a persisted index
/cleardb         forget the active index
/clear           clear the conversation
/mode <name>     general, factual or creative
/model <id>      %s
/quit            leave`

func (m *Model) runCommand(c command) tea.Cmd {
	switch c.name {
	case "help":
		m.Notify(fmt.Sprintf(helpText, strings.Join(llm.Models(), ", ")))
	case "upload":
		if c.arg == "" {
			m.status = "Usage: /upload <path>"
			return nil
		}
		if err := m.engine.UploadDocument(c.arg); err != nil {
			m.notice(err)
			return nil
		}
		m.status = "Selected " + c.arg + ". Type /ingest to add it."
	case "ingest":
		if c.arg != "" {
			if err := m.engine.UploadDocument(c.arg); err != nil {
				m.notice(err)
				return nil
			}
		}
		doc := m.engine.PendingUpload()
		if _, err := m.engine.StartIngestion(); err != nil {
			m.notice(err)
			return nil
		}
		m.working = "Ingesting " + doc + "..."
		return m.startSpinner()
	case "open":
		dir := c.arg
		if dir == "" {
			dir = m.indexDir
		}
		if err := m.engine.OpenIndex(context.Background(), dir); err != nil {
			m.notice(err)
			return nil
		}
		m.blocks = nil
		m.Notify(fmt.Sprintf("Opened the index at %s (%d chunks). Mode is now factual.", dir, m.engine.IndexSize()))
		m.status = "Index opened."
	case "cleardb":
		if err := m.engine.ClearIndex(); err != nil {
			m.notice(err)
			return nil
		}
		m.blocks = nil
		m.status = "Index cleared. Questions go to the model without retrieval."
	case "clear":
		m.engine.ClearConversation()
		m.blocks = nil
		m.status = "Conversation cleared."
	case "mode":
		mode, err := prompt.ParseMode(c.arg)
		if err != nil {
			m.notice(err)
			return nil
		}
		m.engine.SetMode(mode)
		m.status = "Mode set to " + mode.String() + "."
	case "model":
		if err := m.engine.SelectModel(c.arg); err != nil {
			m.notice(err)
			return nil
		}
		m.status = "Model set to " + c.arg + "."
	case "quit", "exit":
		return tea.Quit
	default:
		m.status = fmt.Sprintf("Unknown command /%s, try /help.", c.name)
	}
	return nil
}

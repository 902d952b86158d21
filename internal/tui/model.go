package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/prompt"
	"ragchat/internal/service"
	"ragchat/internal/task"
)

// EnginePort is the TUI-facing subset of the conversation engine.
type EnginePort interface {
	UploadDocument(path string) error
	StartIngestion() (*task.Handle, error)
	SendQuery(text string) (*task.Handle, error)
	SetMode(mode prompt.Mode)
	SelectModel(model string) error
	OpenIndex(ctx context.Context, location string) error
	ClearIndex() error
	ClearConversation()
	Events() <-chan task.Event
	IsBusy() bool
	Mode() prompt.Mode
	Model() string
	State() service.State
	IndexSize() int
	PendingUpload() string
}

var _ EnginePort = (*service.Engine)(nil)

type speaker int

const (
	speakerUser speaker = iota
	speakerGPT
	speakerSystem
)

var labels = map[speaker]string{speakerUser: "USER", speakerGPT: "GPT", speakerSystem: "SYSTEM"}

// block is one entry of the transcript. System blocks are notices for the
// user and never part of the conversation sent to the model.
type block struct {
	who  speaker
	text string
}

// eventMsg carries a background notification into the Update loop.
type eventMsg task.Event

func waitForEvent(events <-chan task.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	engine   EnginePort
	indexDir string
	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	blocks   []block
	busy     bool
	working  string
	status   string
	ready    bool
	width    int
}

// New creates the chat model. indexDir is what /open uses without an
// argument.
func New(engine EnginePort, indexDir string) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask a question, or /help"
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	return Model{
		engine:   engine,
		indexDir: indexDir,
		input:    ta,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Ready. Type /help for commands.",
	}
}

// Init starts the cursor blink and the event subscription.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForEvent(m.engine.Events()))
}

// Notify appends a system notice, for messages produced before the program
// starts.
func (m *Model) Notify(text string) {
	m.blocks = append(m.blocks, block{who: speakerSystem, text: text})
}

// Update handles key, resize and background events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, vh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 2 + m.input.Height() + ih + vh // header + status
		m.input.SetWidth(max(20, msg.Width-inputStyle.GetHorizontalFrameSize()))
		m.viewport.Width = max(20, msg.Width-transcriptStyle.GetHorizontalFrameSize())
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil
	case eventMsg:
		cmd := m.handleEvent(task.Event(msg))
		return m, tea.Batch(cmd, waitForEvent(m.engine.Events()))
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			cmd := m.submit(text)
			m.refresh()
			return m, cmd
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit(text string) tea.Cmd {
	if strings.HasPrefix(text, "/") {
		return m.runCommand(parseCommand(text))
	}
	if m.engine.IsBusy() {
		m.status = "Still working, wait for the current operation to finish."
		return nil
	}
	if _, err := m.engine.SendQuery(text); err != nil {
		m.notice(err)
		return nil
	}
	m.blocks = append(m.blocks, block{who: speakerUser, text: text})
	m.working = "Thinking about: " + text
	return m.startSpinner()
}

func (m *Model) startSpinner() tea.Cmd {
	if m.busy {
		return nil
	}
	m.busy = true
	return m.spinner.Tick
}

func (m *Model) handleEvent(ev task.Event) tea.Cmd {
	if ev.Kind == task.Busy {
		if m.working == "" {
			m.working = "Working on " + string(ev.Op) + "..."
		}
		return m.startSpinner()
	}
	m.busy = false
	m.working = ""
	if ev.Err != nil {
		m.notice(ev.Err)
		m.refresh()
		return nil
	}
	switch v := ev.Value.(type) {
	case service.QueryResult:
		m.blocks = append(m.blocks, block{who: speakerGPT, text: v.Reply})
		m.status = fmt.Sprintf("Answered by %s with %d retrieved chunks.", v.Model, v.Retrieved)
	case service.IngestResult:
		text := fmt.Sprintf("Ingested %s: %d chunks, %d in the index.", v.Document, v.Chunks, v.Total)
		if v.Summary != "" {
			text += "\nSummary: " + v.Summary
		}
		m.Notify(text)
		m.status = "Document ingested."
	}
	m.refresh()
	return nil
}

func (m *Model) notice(err error) {
	m.Notify(service.Notice(err))
	m.status = "Failed."
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders header, transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + statusStyle.Render(m.working)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		transcriptStyle.Render(m.viewport.View()),
		inputStyle.Render(m.input.View()),
		status,
	)
}

func (m Model) header() string {
	index := "no index"
	if m.engine.State() == service.IndexActive {
		index = fmt.Sprintf("index: %d chunks", m.engine.IndexSize())
	}
	parts := []string{
		titleStyle.Render("RAG Chat"),
		"mode: " + m.engine.Mode().String(),
		"model: " + m.engine.Model(),
		index,
	}
	if p := m.engine.PendingUpload(); p != "" {
		parts = append(parts, "pending: "+p)
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderTranscript() string {
	if len(m.blocks) == 0 {
		return hintStyle.Render("No messages yet.")
	}
	width := max(20, m.viewport.Width)
	out := make([]string, len(m.blocks))
	for i, b := range m.blocks {
		label := labelStyles[b.who].Render(labels[b.who] + ":")
		out[i] = lipgloss.NewStyle().Width(width).Render(label + " " + b.text)
	}
	return strings.Join(out, "\n\n")
}

// transcript returns the plain text of the transcript.
func (m Model) transcript() []string {
	out := make([]string, len(m.blocks))
	for i, b := range m.blocks {
		out[i] = labels[b.who] + ": " + b.text
	}
	return out
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	labelStyles     = map[speaker]lipgloss.Style{
		speakerUser:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		speakerGPT:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		speakerSystem: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
)

// internal/tui/tui.go
// Package tui provides the interactive terminal chat for csvchat.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mwiater/csvchat/internal/chat"
	"github.com/mwiater/csvchat/internal/dataset"
	"github.com/mwiater/csvchat/internal/logging"
	"github.com/mwiater/csvchat/internal/providers"
	"github.com/mwiater/csvchat/internal/rag"
	"github.com/mwiater/csvchat/internal/util"
)

// viewState represents the current screen of the application.
type viewState int

const (
	// viewLoadingChat is shown while the model warms up and the index builds.
	viewLoadingChat viewState = iota
	// viewChat is the state where the user is interacting with the chat.
	viewChat
)

// maxRowPreview caps the rendered width of one retrieved row.
const maxRowPreview = 240

// model is the main application model for the Bubble Tea UI.
type model struct {
	ctx              context.Context
	session          *chat.Session
	send             func(tea.Msg)
	state            viewState
	isLoading        bool
	err              error
	status           string
	statusIsError    bool
	textArea         textarea.Model
	viewport         viewport.Model
	spinner          spinner.Model
	pendingQuestion  string
	responseBuf      strings.Builder
	responseMeta     providers.StreamMetadata
	lastAnswer       chat.Answer
	indexInfo        string
	width, height    int
	requestStartTime time.Time
}

// initialModel creates and initializes a new model with default values.
func initialModel(ctx context.Context, session *chat.Session) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ta := textarea.New()
	ta.Placeholder = "Ask a question about the CSV…"
	ta.Focus()
	ta.Prompt = "Ask: "
	ta.ShowLineNumbers = false
	ta.CharLimit = -1
	ta.SetHeight(1)
	ta.KeyMap.InsertNewline.SetEnabled(false)

	return &model{
		ctx:              ctx,
		session:          session,
		send:             func(tea.Msg) {},
		state:            viewLoadingChat,
		isLoading:        true,
		spinner:          s,
		textArea:         ta,
		viewport:         viewport.New(100, 5),
		requestStartTime: time.Now(),
	}
}

// chatReadyMsg is sent once the index for the current settings exists.
type chatReadyMsg struct {
	snapshot *rag.Snapshot
	warmErr  error
}

// chatReadyErr is sent when the index cannot be built.
type chatReadyErr struct{ error }

// streamChunkMsg carries one answer fragment.
type streamChunkMsg string

// answerMsg is sent when a question has been fully answered.
type answerMsg struct{ answer chat.Answer }

// askErr is sent when a question could not be asked at all.
type askErr struct{ error }

// datasetReloadedMsg is sent after the watched dataset file changed.
type datasetReloadedMsg struct {
	ds  *dataset.Dataset
	err error
}

// tickMsg is a message sent at regular intervals, used for animations and timed updates.
type tickMsg time.Time

// prepareChatCmd warms the model and builds the index. A failed warm-up is
// reported but does not block the chat; the first answer will carry the
// reason.
func prepareChatCmd(ctx context.Context, session *chat.Session) tea.Cmd {
	return func() tea.Msg {
		warmErr := session.WarmUp(ctx)
		if warmErr != nil {
			logging.LogEvent("[CHAT %s] warm-up failed: %v", session.ID, warmErr)
		}
		snap, err := session.Prepare()
		if err != nil {
			return chatReadyErr{error: err}
		}
		return chatReadyMsg{snapshot: snap, warmErr: warmErr}
	}
}

// askCmd runs one question. Fragments are forwarded through send while the
// answer streams; the finished answer is the command's result.
func askCmd(ctx context.Context, session *chat.Session, send func(tea.Msg), question string) tea.Cmd {
	return func() tea.Msg {
		log.Printf("[CHAT %s] Outgoing question: %q", session.ID, question)
		answer, err := session.Ask(ctx, question, func(fragment string) {
			send(streamChunkMsg(fragment))
		})
		if err != nil {
			return askErr{error: err}
		}
		return answerMsg{answer: answer}
	}
}

// tickCmd creates a Bubble Tea command that sends a tickMsg at a regular interval.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the spinner and prepares the session.
func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, prepareChatCmd(m.ctx, m.session), tickCmd())
}

func (m *model) setStatus(text string, isError bool) {
	m.status = text
	m.statusIsError = isError
}

// Update is the central update function for the Bubble Tea model.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+r":
			if m.state == viewChat && !m.isLoading {
				m.session.Reset()
				m.lastAnswer = chat.Answer{}
				m.responseMeta = providers.StreamMetadata{}
				m.setStatus(chat.ResetMessage, false)
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.textArea.SetWidth(msg.Width - 3)
		headerHeight := 4
		footerHeight := 3 + m.session.Settings().TopK
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 3)

	case chatReadyMsg:
		m.isLoading = false
		m.state = viewChat
		m.indexInfo = fmt.Sprintf("%d rows indexed, %d terms", msg.snapshot.Index.Len(), msg.snapshot.Index.Dim())
		if msg.warmErr != nil {
			m.setStatus(providers.FailureMessage(m.hostURL(), msg.warmErr), true)
		}
		m.textArea.Focus()
		m.viewport.GotoBottom()
		return m, nil

	case chatReadyErr:
		m.isLoading = false
		m.err = msg.error
		return m, nil

	case streamChunkMsg:
		m.responseBuf.WriteString(string(msg))
		m.viewport.GotoBottom()
		return m, nil

	case answerMsg:
		m.lastAnswer = msg.answer
		m.responseMeta = msg.answer.Meta
		m.responseBuf.Reset()
		m.pendingQuestion = ""
		m.isLoading = false
		m.textArea.Focus()
		m.viewport.GotoBottom()
		return m, nil

	case askErr:
		m.isLoading = false
		m.pendingQuestion = ""
		m.responseBuf.Reset()
		if !errors.Is(msg.error, context.Canceled) {
			m.setStatus(msg.Error(), true)
		}
		return m, nil

	case datasetReloadedMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Dataset reload failed: %v", msg.err), true)
		} else {
			m.setStatus(fmt.Sprintf("Dataset changed. %s", msg.ds.Summary()), false)
		}
		return m, nil

	case tickMsg:
		if m.isLoading {
			return m, tickCmd()
		}
		return m, nil
	}

	if m.state == viewChat {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

		m.textArea, cmd = m.textArea.Update(msg)
		cmds = append(cmds, cmd)

		if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" && !m.isLoading {
			if next := m.submit(strings.TrimSpace(m.textArea.Value())); next != nil {
				cmds = append(cmds, next)
			}
		}
	}

	if m.isLoading {
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// submit handles one line of input: a slash command is applied in place,
// anything else is asked.
func (m *model) submit(input string) tea.Cmd {
	if input == "" {
		return nil
	}
	m.textArea.Reset()

	command, isCommand, err := chat.ParseCommand(input)
	if isCommand {
		if err == nil {
			var status string
			status, err = m.session.Apply(command)
			if err == nil {
				if command.Kind == chat.CommandReset {
					m.lastAnswer = chat.Answer{}
				}
				m.setStatus(status, false)
				return nil
			}
		}
		m.setStatus(err.Error(), true)
		return nil
	}

	m.setStatus("", false)
	m.responseMeta = providers.StreamMetadata{}
	m.requestStartTime = time.Now()
	m.pendingQuestion = input
	m.isLoading = true
	return tea.Batch(m.spinner.Tick, askCmd(m.ctx, m.session, m.send, input), tickCmd())
}

func (m *model) hostURL() string {
	host, err := m.session.Settings().ChatHost()
	if err != nil {
		return ""
	}
	return host.URL
}

// View renders the application's UI based on the current state of the model.
func (m *model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	if m.err != nil {
		errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(1)
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	switch m.state {
	case viewLoadingChat:
		timer := fmt.Sprintf("%.1f", time.Since(m.requestStartTime).Seconds())
		cfg := m.session.Settings()
		return fmt.Sprintf("\n  %s Loading %s and indexing %s... %ss\n", m.spinner.View(), cfg.Model, m.session.Dataset().Name, timer)

	case viewChat:
		return m.chatView()

	default:
		return "Unknown state"
	}
}

// chatView renders the header, the history, the rows used for the last
// answer and the input line.
func (m *model) chatView() string {
	var builder strings.Builder
	cfg := m.session.Settings()
	sel := m.session.Selection()

	labelStyle := lipgloss.NewStyle().Background(lipgloss.Color("0")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1).MarginLeft(1)
	paramStyle := lipgloss.NewStyle().Background(lipgloss.Color("0")).Foreground(lipgloss.Color("40")).Padding(0, 1).MarginLeft(1)

	status := lipgloss.JoinHorizontal(lipgloss.Top,
		labelStyle.Render("Dataset:"),
		headerStyle.Render(m.session.Dataset().Name),
		headerStyle.Render(m.session.Dataset().Summary()),
		headerStyle.Render("Model: "+cfg.Model),
	)
	settings := lipgloss.JoinHorizontal(lipgloss.Top,
		labelStyle.Render("Config:"),
		paramStyle.Render(fmt.Sprintf("Top-k: %d", cfg.TopK)),
		paramStyle.Render(fmt.Sprintf("Rows: %d", cfg.MaxRows)),
		paramStyle.Render(fmt.Sprintf("Temperature: %.2f", cfg.TemperatureValue())),
		paramStyle.Render(fmt.Sprintf("Max tokens: %d", cfg.MaxTokens)),
		paramStyle.Render("Columns: "+strings.Join(sel.Columns, ", ")),
	)
	help := lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render(" (ctrl+r new chat, /help commands, esc to quit)")
	builder.WriteString(status + help + "\n" + settings + "\n\n")

	m.viewport.SetContent(m.historyView())
	builder.WriteString(m.viewport.View())
	builder.WriteString("\n" + m.rowsView())

	if m.status != "" {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
		if m.statusIsError {
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
		}
		builder.WriteString("\n" + style.Render(m.status))
	}

	if m.isLoading {
		timer := fmt.Sprintf("%.1f", time.Since(m.requestStartTime).Seconds())
		loadingText := fmt.Sprintf(" Searching rows and generating answer... %ss", timer)
		builder.WriteString("\n" + m.spinner.View() + loadingText)
	} else {
		builder.WriteString("\n" + m.textArea.View())
	}

	if cfg.Debug && m.responseMeta.Done {
		builder.WriteString("\n" + formatMeta(m.responseMeta))
	}

	return builder.String()
}

func (m *model) historyView() string {
	var historyBuilder strings.Builder
	userStyle := lipgloss.NewStyle().Bold(true)
	assistantStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))

	render := func(role, content string) {
		wrappedContent := lipgloss.NewStyle().Width(max(m.width-lipgloss.Width(role)-2, 10)).Render(content)
		historyBuilder.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, role, wrappedContent) + "\n")
	}

	history := m.session.Conversation().History()
	for _, msg := range history {
		if msg.Role == providers.RoleAssistant {
			render(assistantStyle.Render("Assistant: "), msg.Content)
		} else {
			render(userStyle.Render("You: "), msg.Content)
		}
	}

	if m.pendingQuestion != "" {
		if n := len(history); n == 0 || history[n-1].Role != providers.RoleUser || history[n-1].Content != m.pendingQuestion {
			render(userStyle.Render("You: "), m.pendingQuestion)
		}
	}
	if m.responseBuf.Len() > 0 {
		render(assistantStyle.Render("Assistant: "), m.responseBuf.String())
	}
	return historyBuilder.String()
}

// rowsView lists the rows the last answer was grounded on.
func (m *model) rowsView() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	if len(m.lastAnswer.Rows) == 0 {
		if m.indexInfo != "" {
			return style.Render(m.indexInfo)
		}
		return ""
	}

	width := maxRowPreview
	if m.width > 4 && m.width-4 < width {
		width = m.width - 4
	}

	lines := []string{style.Render("Top-matching rows (used as context):")}
	for i, record := range m.lastAnswer.Rows {
		values := record.Values()
		pairs := make([]string, 0, len(values))
		for j, col := range record.Columns() {
			pairs = append(pairs, col+"="+values[j])
		}
		line := fmt.Sprintf("  ROW %d (%.3f): %s", record.Index, m.lastAnswer.Results[i].Score, strings.Join(pairs, rag.Delimiter))
		lines = append(lines, util.TruncateRunes(line, width))
	}
	return strings.Join(lines, "\n")
}

// formatMeta formats the stream metadata into a human-readable string.
func formatMeta(meta providers.StreamMetadata) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	loadDur := float64(meta.LoadDuration) / 1e9
	promptEvalDur := float64(meta.PromptEvalDuration) / 1e9
	evalDur := float64(meta.EvalDuration) / 1e9
	totalDur := float64(meta.TotalDuration) / 1e9

	return style.Render(fmt.Sprintf(
		"  >>> [Model Load Duration: %.1fs] [Prompt Eval: %.1fs | %d Tokens] [Response Eval: %.1fs | %d Tokens] [Total Duration: %.1fs]",
		loadDur,
		promptEvalDur,
		meta.PromptEvalCount,
		evalDur,
		meta.EvalCount,
		totalDur,
	))
}

// StartGUI runs the interactive chat for session until the user quits.
func StartGUI(ctx context.Context, session *chat.Session, cancel context.CancelFunc) error {
	defer func() {
		log.Println("Cancelling all running requests...")
		cancel()
	}()

	if session == nil {
		return fmt.Errorf("failed to start: session is not initialized")
	}

	m := initialModel(ctx, session)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	m.send = p.Send
	session.SetReloadHook(func(ds *dataset.Dataset, err error) {
		p.Send(datasetReloadedMsg{ds: ds, err: err})
	})

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

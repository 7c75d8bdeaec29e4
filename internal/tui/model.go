package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/qiongqiongyuren/co2yuan3/internal/chunker"
	"github.com/qiongqiongyuren/co2yuan3/internal/client"
	"github.com/qiongqiongyuren/co2yuan3/internal/textutil"
)

// Asker is the TUI-facing subset of the query client.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

type entry struct {
	question string
	answer   string
	err      error
}

// answerMsg carries the result of an Ask started by the model.
type answerMsg struct {
	question string
	answer   string
	err      error
}

// Model is the Bubble Tea model for the chat client.
type Model struct {
	asker    Asker
	timeout  time.Duration
	endpoint string
	input    textinput.Model
	viewport viewport.Model
	history  []entry
	pending  string
	status   string
	ready    bool
}

// New creates a new chat model. endpoint is only displayed.
func New(asker Asker, endpoint string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		asker:    asker,
		timeout:  timeout,
		endpoint: endpoint,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Connected to " + endpoint + ". Ctrl+C to quit.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around transcript and input boxes
		tw, th := transcriptBoxStyle.GetFrameSize()
		iw, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, input, spacer
		m.viewport.Width = max(20, msg.Width-tw)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.input.Width = max(10, msg.Width-iw-lipgloss.Width(m.input.Prompt)-1)
		m.refresh()
		return m, nil
	case answerMsg:
		m.history = append(m.history, entry{question: msg.question, answer: msg.answer, err: msg.err})
		m.pending = ""
		m.status = statusFor(msg.err)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending != "" {
				return m, nil
			}
			m.pending = q
			m.input.SetValue("")
			m.status = "Thinking..."
			m.refresh()
			return m, m.ask(q)
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	asker, timeout := m.asker, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		answer, err := asker.Ask(ctx, question)
		return answerMsg{question: question, answer: answer, err: err}
	}
}

// View renders the transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Document Q&A")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

// refresh rewraps the transcript to the viewport width so the viewport
// scrolls by rendered lines.
func (m *Model) refresh() {
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(m.renderTranscript()))
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.history) == 0 && m.pending == "" {
		return "No questions yet."
	}
	var b strings.Builder
	for i, e := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + e.question))
		b.WriteString("\n")
		if e.err != nil {
			b.WriteString(errorStyle.Render("Error: " + e.err.Error()))
			continue
		}
		b.WriteString(highlightBestSentence(e.answer, e.question))
	}
	if m.pending != "" {
		if len(m.history) > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + m.pending))
		b.WriteString("\n")
		b.WriteString(statusStyle.Render("..."))
	}
	return b.String()
}

func statusFor(err error) string {
	var nr *client.NotReadyError
	switch {
	case err == nil:
		return "Ready."
	case errors.As(err, &nr):
		return fmt.Sprintf("Service is still indexing documents, retry in %s.", nr.RetryAfter)
	default:
		return "Request failed."
	}
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// highlightBestSentence emphasises the answer sentence sharing the most
// words with the question.
func highlightBestSentence(text, question string) string {
	sentences := chunker.SplitSentences(text)
	if len(sentences) <= 1 {
		return strings.TrimSpace(text)
	}
	qTokens := textutil.WordSet(question)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := -1, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx >= 0 {
		sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	}
	return strings.Join(sentences, " ")
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	for t := range textutil.WordSet(sentence) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

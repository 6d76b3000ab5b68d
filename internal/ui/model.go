// Package ui is the EarthMate terminal interface: the action plan form and
// the assistant chat, one tab each.
package ui

import (
	"context"
	"errors"
	"log/slog"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/earthmate/earthmate/internal/chat"
	"github.com/earthmate/earthmate/internal/domain"
	"github.com/earthmate/earthmate/internal/plan"
)

const (
	chatPlaceholder = "Ask about carbon footprint... (Enter to send, Alt+Enter for newline)"

	headerHeight = 5
	footerHeight = 2
	inputHeight  = 3
)

// planFields is the focus order of the plan form.
var planFields = []string{
	domain.FieldTransport,
	domain.FieldElectricity,
	domain.FieldDiet,
	domain.FieldPlastic,
}

type planDoneMsg struct{}

type chatDoneMsg struct{}

// Model is the root bubbletea model.
type Model struct {
	ctx    context.Context
	plan   *plan.Session
	chat   *chat.Session
	styles Styles
	logger *slog.Logger

	view     domain.View
	planSnap plan.Snapshot
	chatSnap chat.Snapshot

	focus       int
	electricity textinput.Model
	plastic     textinput.Model

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	width  int
	height int
	ready  bool
}

// New creates the model. ctx bounds the backend requests it starts.
func New(ctx context.Context, planSession *plan.Session, chatSession *chat.Session, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	styles := DefaultStyles()

	electricity := textinput.New()
	electricity.Placeholder = "e.g. 300"
	electricity.CharLimit = 12
	plastic := textinput.New()
	plastic.Placeholder = "e.g. 10"
	plastic.CharLimit = 12

	ta := textarea.New()
	ta.Placeholder = chatPlaceholder
	ta.ShowLineNumbers = false
	ta.SetHeight(inputHeight)
	ta.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	m := Model{
		ctx:         ctx,
		plan:        planSession,
		chat:        chatSession,
		styles:      styles,
		logger:      logger,
		view:        domain.ViewPlan,
		electricity: electricity,
		plastic:     plastic,
		textarea:    ta,
		viewport:    viewport.New(0, 0),
		spinner:     sp,
	}
	m.planSnap = planSession.Snapshot()
	m.chatSnap = chatSession.Snapshot()
	m.electricity.SetValue(m.planSnap.Input.Electricity)
	m.plastic.SetValue(m.planSnap.Input.Plastic)
	m.textarea.SetValue(m.chatSnap.Draft)
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case planDoneMsg:
		m.planSnap = m.plan.Snapshot()
		return m, nil

	case chatDoneMsg:
		m.syncChat()
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.view == domain.ViewChat {
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	contentWidth := width - 4
	if contentWidth < 1 {
		contentWidth = 1
	}
	vpHeight := height - headerHeight - footerHeight - inputHeight - 2
	if vpHeight < 1 {
		vpHeight = 1
	}

	m.viewport.Width = contentWidth
	m.viewport.Height = vpHeight
	m.textarea.SetWidth(contentWidth)
	m.electricity.Width = 20
	m.plastic.Width = 20

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(contentWidth-4),
	)
	if err != nil {
		m.logger.Warn("markdown renderer unavailable", "error", err)
	} else {
		m.renderer = renderer
	}

	m.ready = true
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) busy() bool {
	return m.planSnap.Loading || m.chatSnap.Sending
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.view = m.view.Toggle()
		m.applyFocus()
		return m, nil
	}

	if m.view == domain.ViewChat {
		return m.handleChatKey(msg)
	}
	return m.handlePlanKey(msg)
}

func (m Model) handlePlanKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	field := planFields[m.focus]

	switch msg.String() {
	case "enter":
		return m.submitPlan()
	case "up":
		m.focus = (m.focus + len(planFields) - 1) % len(planFields)
		m.applyFocus()
		return m, nil
	case "down":
		m.focus = (m.focus + 1) % len(planFields)
		m.applyFocus()
		return m, nil
	case "left", "right":
		delta := 1
		if msg.String() == "left" {
			delta = -1
		}
		switch field {
		case domain.FieldTransport:
			next := cycle(domain.Transports, m.planSnap.Input.Transport, delta)
			m.setPlanField(field, string(next))
			return m, nil
		case domain.FieldDiet:
			next := cycle(domain.Diets, m.planSnap.Input.Diet, delta)
			m.setPlanField(field, string(next))
			return m, nil
		}
	}

	input := m.inputFor(field)
	if input == nil {
		return m, nil
	}
	var cmd tea.Cmd
	*input, cmd = input.Update(msg)
	m.setPlanField(field, input.Value())
	return m, cmd
}

func (m *Model) setPlanField(name, value string) {
	if err := m.plan.UpdateField(name, value); err != nil {
		m.logger.Warn("plan field rejected", "field", name, "error", err)
	}
	m.planSnap = m.plan.Snapshot()
}

func (m Model) submitPlan() (tea.Model, tea.Cmd) {
	done, err := m.plan.SubmitAsync(m.ctx)
	if err != nil {
		m.logger.Warn("plan submit rejected", "error", err)
		return m, nil
	}
	m.planSnap = m.plan.Snapshot()
	return m, tea.Batch(waitFor(done, planDoneMsg{}), m.spinner.Tick)
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	// The input is disabled while a message is outstanding.
	if m.chatSnap.Sending {
		return m, nil
	}

	switch msg.String() {
	case "enter":
		return m.sendChat()
	case "alt+enter":
		if err := m.chat.KeyPress(m.ctx, true); err != nil {
			m.logger.Warn("newline rejected", "error", err)
		}
		m.chatSnap = m.chat.Snapshot()
		m.textarea.SetValue(m.chatSnap.Draft)
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	if m.textarea.Value() != m.chatSnap.Draft {
		if err := m.chat.UpdateDraft(m.textarea.Value()); err != nil {
			m.logger.Warn("draft update rejected", "error", err)
		}
		m.chatSnap = m.chat.Snapshot()
	}
	return m, cmd
}

func (m Model) sendChat() (tea.Model, tea.Cmd) {
	done, err := m.chat.SendAsync(m.ctx)
	switch {
	case errors.Is(err, chat.ErrEmptyDraft), errors.Is(err, chat.ErrBusy):
		return m, nil
	case err != nil:
		m.logger.Warn("chat send rejected", "error", err)
		return m, nil
	}

	m.textarea.Reset()
	m.textarea.Blur()
	m.syncChat()
	return m, tea.Batch(waitFor(done, chatDoneMsg{}), m.spinner.Tick)
}

// syncChat refreshes the chat snapshot and keeps the latest message visible.
func (m *Model) syncChat() {
	m.chatSnap = m.chat.Snapshot()
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
	if !m.chatSnap.Sending && m.view == domain.ViewChat {
		m.textarea.Focus()
	}
}

func (m *Model) applyFocus() {
	m.electricity.Blur()
	m.plastic.Blur()
	m.textarea.Blur()

	if m.view == domain.ViewChat {
		if !m.chatSnap.Sending {
			m.textarea.Focus()
		}
		return
	}
	if input := m.inputFor(planFields[m.focus]); input != nil {
		input.Focus()
	}
}

func (m *Model) inputFor(field string) *textinput.Model {
	switch field {
	case domain.FieldElectricity:
		return &m.electricity
	case domain.FieldPlastic:
		return &m.plastic
	}
	return nil
}

func waitFor(done <-chan struct{}, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		<-done
		return msg
	}
}

func cycle[T comparable](options []T, current T, delta int) T {
	idx := 0
	for i, o := range options {
		if o == current {
			idx = i
			break
		}
	}
	return options[(idx+delta+len(options))%len(options)]
}

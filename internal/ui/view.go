package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/earthmate/earthmate/internal/domain"
)

// LoadingText is shown while a plan request is outstanding.
const LoadingText = "⏳ Generating your personalized action plan..."

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var body string
	if m.view == domain.ViewChat {
		body = m.renderChat()
	} else {
		body = m.renderPlan()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	title := m.styles.Header.Render("EarthMate")
	tagline := m.styles.Tagline.Render("Your partner for the planet")

	var tabs []string
	for _, v := range []domain.View{domain.ViewPlan, domain.ViewChat} {
		style := m.styles.Tab
		if v == m.view {
			style = m.styles.ActiveTab
		}
		tabs = append(tabs, style.Render(v.Title()))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title+" "+tagline,
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...),
		"",
	)
}

func (m Model) renderFooter() string {
	help := "tab switch view • ↑/↓ field • ←/→ option • enter generate plan • ctrl+c quit"
	if m.view == domain.ViewChat {
		help = "tab switch view • enter send • alt+enter newline • pgup/pgdown scroll • ctrl+c quit"
	}
	return m.styles.Footer.Render(help)
}

func (m Model) renderPlan() string {
	var sb strings.Builder

	sb.WriteString(m.styles.Heading.Render("🌍 Your Personalized Action Plan"))
	sb.WriteString("\n\n")

	in := m.planSnap.Input
	rows := []struct {
		label string
		value string
	}{
		{"How do you usually travel?", "‹ " + in.Transport.Label() + " ›"},
		{"Electricity usage per month (kWh approx):", m.electricity.View()},
		{"Your diet preference:", "‹ " + in.Diet.Label() + " ›"},
		{"Plastic usage (per week items):", m.plastic.View()},
	}
	for i, row := range rows {
		label := m.styles.Label.Render(row.label)
		cursor := "  "
		if i == m.focus {
			label = m.styles.Focused.Render(row.label)
			cursor = m.styles.Focused.Render("▸ ")
		}
		sb.WriteString(cursor + label + "\n")
		sb.WriteString("    " + row.value + "\n")
	}
	sb.WriteString("\n")

	sb.WriteString(m.renderPlanResult())
	return sb.String()
}

func (m Model) renderPlanResult() string {
	snap := m.planSnap
	if snap.Loading {
		return m.spinner.View() + " " + m.styles.Focused.Render(LoadingText)
	}

	r := snap.Result
	if r == nil {
		return m.styles.Muted.Render("Press enter to generate your plan.")
	}
	if r.Failed() {
		return m.styles.Error.Render(r.Error)
	}

	var sb strings.Builder
	sb.WriteString(m.styles.Heading.Render(fmt.Sprintf("Your Yearly Carbon Footprint: %s tons CO₂", r.FootprintText())))
	sb.WriteString("\n\n")
	for _, rec := range r.Recommendations {
		sb.WriteString("• " + rec + "\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.Heading.Render("🤖 AI Personalized Tips:"))
	sb.WriteString("\n")
	sb.WriteString(m.renderMarkdown(r.AITips))

	return m.styles.Result.Render(strings.TrimRight(sb.String(), "\n"))
}

func (m Model) renderChat() string {
	input := m.textarea.View()
	if m.chatSnap.Sending {
		input = m.spinner.View() + " " + m.styles.Muted.Render("Sending...")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		"",
		input,
	)
}

func (m Model) renderTranscript() string {
	if len(m.chatSnap.Transcript) == 0 {
		return m.styles.Muted.Render("Ask EarthMate anything about reducing your carbon footprint.")
	}

	var sb strings.Builder
	for _, msg := range m.chatSnap.Transcript {
		switch msg.Role {
		case domain.RoleUser:
			sb.WriteString(m.styles.UserMsg.Render("You") + "\n")
			sb.WriteString(msg.Text + "\n\n")
		case domain.RolePending:
			sb.WriteString(m.styles.Pending.Render(msg.Text) + "\n\n")
		default:
			sb.WriteString(m.styles.BotMsg.Render("EarthMate") + "\n")
			sb.WriteString(m.renderMarkdown(msg.Text) + "\n")
		}
	}
	return sb.String()
}

// renderMarkdown falls back to the raw text when glamour fails or panics.
func (m Model) renderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return strings.Trim(rendered, "\n")
		}
	}
	return content
}

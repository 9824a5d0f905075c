// Package tui renders an interactive cost estimator on top of a
// calculator session and the persisted theme.
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/macfox/costcalc/internal/calculator"
	"github.com/macfox/costcalc/internal/catalog"
	"github.com/macfox/costcalc/internal/theme"
)

const (
	fieldInput = iota
	fieldOutput
	fieldRequests
	fieldModels
	fieldCount
)

const visibleModels = 8

// SaveFunc persists the current estimate and returns a status line.
type SaveFunc func(calculator.Snapshot) (string, error)

type Model struct {
	calc   *calculator.Calculator
	theme  *theme.State
	save   SaveFunc
	models []catalog.ModelPrice

	inputs  [fieldModels]textinput.Model
	focus   int
	cursor  int
	snap    calculator.Snapshot
	styles  palette
	status  string
	err     error
	done    bool
	cleanup []func()
}

var _ tea.Model = (*Model)(nil)

func New(calc *calculator.Calculator, themeState *theme.State, save SaveFunc) *Model {
	m := &Model{
		calc:   calc,
		theme:  themeState,
		save:   save,
		models: calc.Catalog().Models(),
		snap:   calc.Snapshot(),
		styles: paletteFor(themeState.Get()),
	}
	st := m.snap.State
	placeholders := [fieldModels]string{"input tokens", "output tokens", "requests"}
	values := [fieldModels]int64{st.InputTokens, st.OutputTokens, st.Requests}
	for i := range m.inputs {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = 20
		ti.Width = 20
		ti.SetValue(strconv.FormatInt(values[i], 10))
		m.inputs[i] = ti
	}
	m.inputs[fieldInput].Focus()
	for i, model := range m.models {
		if model.ID == st.SelectedModelID {
			m.cursor = i
			break
		}
	}

	m.cleanup = append(m.cleanup,
		calc.Subscribe(func(s calculator.Snapshot) { m.snap = s }),
		themeState.Subscribe(func(t theme.Theme) { m.styles = paletteFor(t) }),
	)
	return m
}

func (m *Model) Snapshot() calculator.Snapshot { return m.snap }

func (m *Model) Done() bool { return m.done }

func (m *Model) Init() tea.Cmd { return textinput.Blink }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, m.updateFocusedInput(msg)
	}
	switch key.String() {
	case "ctrl+c", "esc":
		m.quit()
		return m, tea.Quit
	case "tab":
		m.setFocus((m.focus + 1) % fieldCount)
		return m, nil
	case "shift+tab":
		m.setFocus((m.focus + fieldCount - 1) % fieldCount)
		return m, nil
	case "ctrl+t":
		next := m.theme.Toggle()
		m.status = "theme: " + string(next)
		return m, nil
	case "ctrl+s":
		m.saveEstimate()
		return m, nil
	}
	if m.focus == fieldModels {
		switch key.String() {
		case "up", "k":
			m.moveCursor(-1)
		case "down", "j":
			m.moveCursor(1)
		case "home", "g":
			m.moveCursor(-len(m.models))
		case "end", "G":
			m.moveCursor(len(m.models))
		}
		return m, nil
	}
	return m, m.updateFocusedInput(msg)
}

func (m *Model) quit() {
	m.done = true
	for _, fn := range m.cleanup {
		fn()
	}
	m.cleanup = nil
}

func (m *Model) setFocus(field int) {
	m.focus = field
	for i := range m.inputs {
		if i == field {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
}

func (m *Model) moveCursor(delta int) {
	if len(m.models) == 0 {
		return
	}
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.models) {
		m.cursor = len(m.models) - 1
	}
	m.calc.SetSelectedModelID(m.models[m.cursor].ID)
}

func (m *Model) updateFocusedInput(msg tea.Msg) tea.Cmd {
	if m.focus >= fieldModels {
		return nil
	}
	before := m.inputs[m.focus].Value()
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	if value := m.inputs[m.focus].Value(); value != before {
		m.pushInput(m.focus, value)
	}
	return cmd
}

func (m *Model) pushInput(field int, raw string) {
	n, err := calculator.ParseCount(raw)
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	switch field {
	case fieldInput:
		m.calc.SetInputTokens(n)
	case fieldOutput:
		m.calc.SetOutputTokens(n)
	case fieldRequests:
		m.calc.SetRequests(n)
	}
}

func (m *Model) saveEstimate() {
	if m.save == nil {
		m.status = "saving is disabled"
		return
	}
	status, err := m.save(m.snap)
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.status = status
}

func (m *Model) View() string {
	if m.done {
		return ""
	}
	s := m.styles
	var b strings.Builder
	b.WriteString(s.title.Render("AI cost estimator"))
	b.WriteString(s.muted.Render("  theme: " + string(m.theme.Get())))
	b.WriteString("\n\n")

	labels := [fieldModels]string{"Input tokens ", "Output tokens", "Requests     "}
	for i, label := range labels {
		style := s.label
		if m.focus == i {
			style = s.focused
		}
		fmt.Fprintf(&b, "%s %s\n", style.Render(label), m.inputs[i].View())
	}
	b.WriteString("\n")

	header := s.label
	if m.focus == fieldModels {
		header = s.focused
	}
	b.WriteString(header.Render("Model"))
	b.WriteString("\n")
	b.WriteString(m.renderModelList())
	b.WriteString("\n")
	b.WriteString(s.box.Render(m.renderResult()))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(s.errorMsg.Render(m.err.Error()))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(s.muted.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(s.muted.Render("tab: next field  ↑/↓: model  ctrl+t: theme  ctrl+s: save  esc: quit"))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) renderModelList() string {
	if len(m.models) == 0 {
		return m.styles.muted.Render("  (catalog is empty)") + "\n"
	}
	start := m.cursor - visibleModels/2
	if start > len(m.models)-visibleModels {
		start = len(m.models) - visibleModels
	}
	if start < 0 {
		start = 0
	}
	end := start + visibleModels
	if end > len(m.models) {
		end = len(m.models)
	}
	var b strings.Builder
	for i := start; i < end; i++ {
		model := m.models[i]
		line := fmt.Sprintf("%-24s %-12s in $%.3f  out $%.3f /1M", model.Name, model.Provider, model.InputCostPerMillion, model.OutputCostPerMillion)
		if i == m.cursor {
			b.WriteString("> " + m.styles.selected.Render(line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderResult() string {
	s := m.styles
	model, ok := m.snap.SelectedModel()
	if !ok {
		return s.muted.Render("No model selected") + "\n" + s.cost.Render("Estimated cost: "+calculator.FormatUSD(0))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", model.Name, model.Provider)
	if model.ContextWindow > 0 {
		fmt.Fprintf(&b, "%s\n", s.muted.Render("context: "+calculator.FormatTokenCount(int64(model.ContextWindow))+" tokens"))
	}
	br := m.snap.Breakdown
	fmt.Fprintf(&b, "input %s  output %s  per request %s\n",
		calculator.FormatUSD(br.Input), calculator.FormatUSD(br.Output), calculator.FormatUSD(br.PerRequest))
	b.WriteString(s.cost.Render("Estimated cost: " + calculator.FormatUSD(m.snap.Cost)))
	if m.snap.HasNotes {
		b.WriteString("\n")
		b.WriteString(s.muted.Render(m.snap.Notes))
	}
	return b.String()
}

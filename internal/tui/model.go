// Package tui is a terminal consumer of the fetch engine. Keystrokes feed the
// engine's debounced SetLocation; the view re-renders from state updates.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-fetcher/internal/engine"
	"github.com/kjstillabower/weather-fetcher/internal/models"
	"github.com/kjstillabower/weather-fetcher/internal/state"
	"github.com/kjstillabower/weather-fetcher/internal/validation"
)

// FallbackMessage is shown instead of the error once the engine escalates.
const FallbackMessage = "We are having trouble reaching the weather service. Please try again later."

// Engine is the part of the fetch engine the TUI drives.
type Engine interface {
	SetLocation(location string) error
	FlushPending() bool
	Refresh(ctx context.Context) (models.WeatherRecord, error)
	ClearCache(ctx context.Context) error
	Subscribe() (<-chan state.FetchState, func())
	State() state.FetchState
	Location() string
}

// Options configures the model.
type Options struct {
	Context   context.Context
	Engine    Engine
	Logger    *zap.Logger
	MinLength int
	MaxLength int
}

type stateMsg state.FetchState

// actionMsg reports the outcome of a refresh or cache clear.
type actionMsg struct {
	action string
	err    error
}

// Model is the root bubbletea model.
type Model struct {
	ctx    context.Context
	engine Engine
	logger *zap.Logger

	updates     <-chan state.FetchState
	unsubscribe func()

	input   textinput.Model
	spinner spinner.Model
	help    help.Model
	keys    keyMap
	styles  styles

	minLen, maxLen int

	current state.FetchState
	hint    string
	status  string
	width   int
}

// New creates the model and subscribes to engine state.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	minLen, maxLen := opts.MinLength, opts.MaxLength
	if minLen <= 0 {
		minLen = validation.DefaultMinLength
	}
	if maxLen <= 0 {
		maxLen = validation.DefaultMaxLength
	}

	st := defaultStyles()

	ti := textinput.New()
	ti.Placeholder = "Enter location"
	ti.CharLimit = maxLen
	ti.SetValue(opts.Engine.Location())
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = st.Spinner

	updates, unsubscribe := opts.Engine.Subscribe()

	return Model{
		ctx:         ctx,
		engine:      opts.Engine,
		logger:      logger,
		updates:     updates,
		unsubscribe: unsubscribe,
		input:       ti,
		spinner:     sp,
		help:        help.New(),
		keys:        defaultKeyMap(),
		styles:      st,
		minLen:      minLen,
		maxLen:      maxLen,
		current:     opts.Engine.State(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForState(m.updates))
}

// waitForState blocks until the engine publishes a new state.
func waitForState(ch <-chan state.FetchState) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg(s)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case stateMsg:
		m.current = state.FetchState(msg)
		return m, waitForState(m.updates)

	case actionMsg:
		m.status = m.describeAction(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.unsubscribe()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		m.status = ""
		if m.hint == "" && m.engine.Location() != m.input.Value() {
			m.setLocation(m.input.Value())
		}
		return m, m.flushPending()

	case key.Matches(msg, m.keys.Refresh):
		m.status = ""
		return m, m.runAction("refresh", func(ctx context.Context) error {
			_, err := m.engine.Refresh(ctx)
			return err
		})

	case key.Matches(msg, m.keys.ClearCache):
		m.status = ""
		return m, m.runAction("clear", m.engine.ClearCache)
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.status = ""
		m.setLocation(after)
	}
	return m, cmd
}

// setLocation validates locally for the hint line and hands every edit to the
// engine, whose debouncer collapses bursts of keystrokes.
func (m *Model) setLocation(value string) {
	m.hint = ""
	if _, err := validation.ValidateLocation(value, m.minLen, m.maxLen); err != nil && !errors.Is(err, validation.ErrLocationEmpty) {
		m.hint = hintFor(err)
	}
	if err := m.engine.SetLocation(value); err != nil {
		m.logger.Debug("set location rejected", zap.Error(err))
	}
}

// flushPending runs the pending debounced fetch off the event loop; the
// flush blocks until the provider answers.
func (m Model) flushPending() tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		eng.FlushPending()
		return nil
	}
}

func (m Model) runAction(action string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionMsg{action: action, err: fn(ctx)}
	}
}

func (m Model) describeAction(msg actionMsg) string {
	switch {
	case msg.err == nil && msg.action == "clear":
		return "Cache cleared"
	case msg.err == nil:
		return ""
	case errors.Is(msg.err, validation.ErrLocationEmpty):
		return "Enter a location first"
	case errors.Is(msg.err, engine.ErrSuperseded), errors.Is(msg.err, engine.ErrClosed):
		return ""
	case msg.action == "clear":
		m.logger.Warn("clear cache failed", zap.Error(msg.err))
		return "Could not clear cache"
	default:
		// Fetch failures already surface through state.
		m.logger.Debug("refresh failed", zap.Error(msg.err))
		return ""
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, validation.ErrLocationTooShort):
		return "Location is too short"
	case errors.Is(err, validation.ErrLocationTooLong):
		return "Location is too long"
	case errors.Is(err, validation.ErrLocationInvalidChars):
		return "Use letters, digits, spaces and , - . ' only"
	default:
		return err.Error()
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Weather"))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.hint != "" {
		b.WriteString(m.styles.Error.Render(m.hint))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.renderBody())
	b.WriteString("\n\n")
	if m.status != "" {
		b.WriteString(m.styles.Muted.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.ShortHelpView(m.keys.bindings()))
	return b.String()
}

func (m Model) renderBody() string {
	s := m.current
	switch s.Phase() {
	case state.PhaseLoading:
		return m.spinner.View() + " Loading..."
	case state.PhaseFallback:
		return m.styles.Fallback.Render(FallbackMessage)
	case state.PhaseFailed:
		line := m.styles.Error.Render("Error: " + s.Error)
		if len(s.Data) == 0 {
			return line
		}
		return line + "\n" + m.renderRecord(s.Data)
	case state.PhaseSuccess:
		return m.renderRecord(s.Data)
	default:
		return m.styles.Muted.Render("Type a location to see the weather.")
	}
}

func (m Model) renderRecord(data models.WeatherRecord) string {
	sum, err := data.Summary()
	if err != nil {
		m.logger.Debug("record has no displayable summary", zap.Error(err))
		return m.styles.Panel.Render(m.styles.Muted.Render(string(data)))
	}
	place := sum.Location
	if sum.Country != "" {
		place += ", " + sum.Country
	}
	rows := []string{
		m.row("Location", place),
		m.row("Temperature", fmt.Sprintf("%.1f°C", sum.Temperature)),
		m.row("Conditions", sum.Conditions),
		m.row("Humidity", fmt.Sprintf("%d%%", sum.Humidity)),
		m.row("Wind", fmt.Sprintf("%.1f m/s", sum.WindSpeed)),
	}
	return m.styles.Panel.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, m.styles.Label.Render(label), m.styles.Value.Render(value))
}

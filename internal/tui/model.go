// Package tui is a terminal renderer for one list controller. It forwards key
// presses as controller events and draws whatever snapshot arrives last.
package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pitabwire/charlist/model"
)

const subscriptionBuffer = 8

// Controller is the part of a list controller the renderer drives.
type Controller interface {
	Submit(ev model.Event)
	Subscribe(buffer int) (<-chan model.State, func())
}

// Messages
type stateMsg struct{ state model.State }
type closedMsg struct{}

// Model is the main Bubbletea model.
type Model struct {
	ctrl        Controller
	states      <-chan model.State
	unsubscribe func()

	state      model.State
	cursor     int
	chipCursor int

	// pickerCursor indexes state.Subcategories; dismissed holds the version
	// whose picker the user closed.
	pickerCursor int
	dismissed    uint64

	searching bool
	search    textinput.Model
	spinner   spinner.Model
	help      help.Model

	width  int
	height int
}

// New subscribes to ctrl and returns a model showing its current snapshot.
func New(ctrl Controller) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	ti := textinput.New()
	ti.Placeholder = "Search by name"
	ti.Prompt = "/ "
	ti.CharLimit = 64
	ti.Width = 32

	states, unsubscribe := ctrl.Subscribe(subscriptionBuffer)
	return Model{
		ctrl:        ctrl,
		states:      states,
		unsubscribe: unsubscribe,
		state:       model.State{Kind: model.StateLoading, Page: 1},
		dismissed:   ^uint64(0),
		search:      ti,
		spinner:     s,
		help:        help.New(),
	}
}

// Close releases the controller subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.states),
		m.spinner.Tick,
		m.submit(model.ViewAppeared{}),
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateMsg:
		m.applyState(msg.state)
		return m, waitForState(m.states)

	case closedMsg:
		return m, tea.Quit
	}

	if m.searching {
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) applyState(s model.State) {
	opened := len(s.Subcategories) > 0 && len(m.state.Subcategories) == 0
	m.state = s

	if opened {
		m.pickerCursor = 0
	}
	if m.cursor >= len(s.Items) {
		m.cursor = max(len(s.Items)-1, 0)
	}
	if m.chipCursor >= len(s.Chips) {
		m.chipCursor = 0
	}
}

// handleKeyPress processes keyboard input based on what is on screen.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	switch {
	case m.searching:
		return m.handleSearchKey(msg)
	case m.pickerOpen():
		return m.handlePickerKey(msg)
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Refresh):
		m.cursor = 0
		return m, m.submit(model.Refresh{})
	}

	if !m.state.IsLoaded() {
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.state.Items)-1 {
			m.cursor++
			return m, nil
		}
		if m.state.HasMore {
			return m, m.submit(model.LoadMore{})
		}

	case key.Matches(msg, keys.Search):
		m.searching = true
		cmd := m.search.Focus()
		return m, cmd

	case key.Matches(msg, keys.NextChip):
		if n := len(m.state.Chips); n > 0 {
			m.chipCursor = (m.chipCursor + 1) % n
		}

	case key.Matches(msg, keys.Toggle):
		if chip, ok := m.focusedChip(); ok {
			return m, m.submit(model.ToggleCategoryChip{Name: chip.Text})
		}

	case key.Matches(msg, keys.Open):
		if chip, ok := m.focusedChip(); ok {
			m.dismissed = ^uint64(0)
			return m, m.submit(model.CategoryTapped{Name: chip.Text})
		}
	}
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		return m, nil
	}

	before := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if after := m.search.Value(); after != before {
		m.cursor = 0
		return m, tea.Batch(cmd, m.submit(model.Search{Text: after}))
	}
	return m, cmd
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	options := m.state.Subcategories
	switch {
	case key.Matches(msg, keys.Back), key.Matches(msg, keys.Quit):
		m.dismissed = m.state.Version
	case key.Matches(msg, keys.Up):
		if m.pickerCursor > 0 {
			m.pickerCursor--
		}
	case key.Matches(msg, keys.Down):
		if m.pickerCursor < len(options)-1 {
			m.pickerCursor++
		}
	case key.Matches(msg, keys.Open):
		opt := options[m.pickerCursor]
		m.dismissed = m.state.Version
		m.cursor = 0
		return m, m.submit(model.SubcategoryTapped{Option: opt})
	}
	return m, nil
}

func (m Model) pickerOpen() bool {
	return m.state.IsLoaded() && len(m.state.Subcategories) > 0 && m.dismissed != m.state.Version
}

func (m Model) focusedChip() (model.FilterOption, bool) {
	if m.chipCursor < 0 || m.chipCursor >= len(m.state.Chips) {
		return model.FilterOption{}, false
	}
	return m.state.Chips[m.chipCursor], true
}

func (m Model) submit(ev model.Event) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.Submit(ev)
		return nil
	}
}

func waitForState(states <-chan model.State) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-states
		if !ok {
			return closedMsg{}
		}
		return stateMsg{state: s}
	}
}

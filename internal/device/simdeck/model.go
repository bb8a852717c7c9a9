package simdeck

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andrei-cloud/keydeck/internal/journal"
	"github.com/andrei-cloud/keydeck/internal/plugins"
	"github.com/andrei-cloud/keydeck/pkg/deck"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	modeKeys = iota
	modePick
	modeTarget
	modeConfigure
	modeEdit
)

const (
	refreshInterval = 250 * time.Millisecond
	journalLines    = 8
	keyWidth        = 14
	keysPerRow      = 3
)

var (
	colorCyan = lipgloss.AdaptiveColor{Light: "#008b8b", Dark: "#00ffff"}
	colorGray = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#888888"}

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	styleKey = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Background(lipgloss.Color("#323232")).
			Foreground(lipgloss.Color("#ffffff")).
			Bold(true).
			Width(keyWidth).
			Height(3).
			Align(lipgloss.Center, lipgloss.Center)

	styleSelected = lipgloss.NewStyle().
			Background(lipgloss.AdaptiveColor{Light: "#d3d3d3", Dark: "#3a3a3a"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"})

	styleSubtle = lipgloss.NewStyle().
			Foreground(colorGray)
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type model struct {
	ctx     context.Context
	deck    *Deck
	ctrl    Controller
	journal *journal.Journal

	mode     int
	filter   string
	matches  []deck.Descriptor
	selected int
	pending  deck.Descriptor
	status   string

	editKey  int
	editType deck.Type
	input    string
	details  string
}

func newModel(ctx context.Context, d *Deck, ctrl Controller, j *journal.Journal) model {
	return model{ctx: ctx, deck: d, ctrl: ctrl, journal: j}
}

// Init starts the refresh ticker.
func (m model) Init() tea.Cmd {
	return tick()
}

// Update handles messages and updates the model state.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.mode {
		case modePick:
			return m.updatePick(msg), nil
		case modeTarget:
			return m.updateTarget(msg), nil
		case modeConfigure:
			return m.updateConfigure(msg), nil
		case modeEdit:
			return m.updateEdit(msg), nil
		default:
			return m.updateKeys(msg)
		}
	}

	return m, nil
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.details = ""

	switch s := msg.String(); s {
	case "q":
		return m, tea.Quit
	case "a":
		m.mode = modePick
		m.filter = ""
		m.selected = 0
		m.matches = m.choices()
		m.status = ""
	case "c":
		m.mode = modeConfigure
		m.status = ""
	case "r":
		if err := m.ctrl.Rescan(m.ctx); err != nil {
			m.status = err.Error()
		} else {
			m.status = "plugins rescanned"
		}
	default:
		if k, ok := keyIndex(s, m.deck.Keys()); ok {
			m.deck.Press(k)
		}
	}

	return m, nil
}

func (m model) updatePick(msg tea.KeyMsg) model {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeKeys
	case tea.KeyEnter:
		if len(m.matches) == 0 {
			return m
		}
		m.pending = m.matches[m.selected]
		m.mode = modeTarget
	case tea.KeyUp:
		if m.selected > 0 {
			m.selected--
		}
	case tea.KeyDown:
		if m.selected < len(m.matches)-1 {
			m.selected++
		}
	case tea.KeyBackspace:
		if m.filter != "" {
			m.filter = trimLastRune(m.filter)
			m.refilter()
		}
	case tea.KeyRunes, tea.KeySpace:
		m.filter += string(msg.Runes)
		m.refilter()
	}

	return m
}

// choices lists the plugin actions followed by the built-in kinds.
func (m model) choices() []deck.Descriptor {
	out := append([]deck.Descriptor(nil), m.ctrl.Catalog()...)
	return append(out, deck.Builtins()...)
}

func (m *model) refilter() {
	m.matches = plugins.FilterCatalog(m.choices(), m.filter)
	m.selected = 0
}

func (m model) updateTarget(msg tea.KeyMsg) model {
	if msg.Type == tea.KeyEsc {
		m.mode = modeKeys
		return m
	}

	k, ok := keyIndex(msg.String(), m.deck.Keys())
	if !ok {
		return m
	}
	m.mode = modeKeys
	if err := m.ctrl.Assign(k, m.pending); err != nil {
		m.status = err.Error()
		return m
	}
	m.status = fmt.Sprintf("assigned %s to key %d", m.pending.ActionName, k+1)

	// built-in kinds need their payload before they do anything.
	if t := m.pending.ActionType; t == deck.TypeMessage || t == deck.TypeCommand {
		m.startEdit(k, m.pending)
	}

	return m
}

func (m model) updateConfigure(msg tea.KeyMsg) model {
	if msg.Type == tea.KeyEsc {
		m.mode = modeKeys
		return m
	}

	k, ok := keyIndex(msg.String(), m.deck.Keys())
	if !ok {
		return m
	}
	m.mode = modeKeys

	d, err := m.ctrl.Descriptor(k)
	if err != nil {
		m.status = err.Error()
		return m
	}

	switch d.ActionType {
	case deck.TypeMessage, deck.TypeCommand:
		m.startEdit(k, d)
	case deck.TypePlugin:
		ctl, err := m.ctrl.Configuration(k)
		if err != nil {
			m.status = err.Error()
			return m
		}
		m.details = fmt.Sprintf("Key %d: %s (%s)\nconfiguration: %s",
			k+1, d.ActionName, d.ActionID, formatControl(ctl))
	default:
		m.status = fmt.Sprintf("key %d has no action", k+1)
	}

	return m
}

func (m *model) startEdit(k int, d deck.Descriptor) {
	m.mode = modeEdit
	m.editKey = k
	m.editType = d.ActionType
	m.input = d.Payload()
}

func (m model) updateEdit(msg tea.KeyMsg) model {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeKeys
	case tea.KeyEnter:
		m.mode = modeKeys

		var err error
		if m.editType == deck.TypeMessage {
			err = m.ctrl.SetMessage(m.editKey, m.input)
		} else {
			err = m.ctrl.SetCommand(m.editKey, m.input)
		}
		if err != nil {
			m.status = err.Error()
			return m
		}
		m.status = fmt.Sprintf("updated key %d", m.editKey+1)
	case tea.KeyBackspace:
		m.input = trimLastRune(m.input)
	case tea.KeyRunes, tea.KeySpace:
		m.input += string(msg.Runes)
	}

	return m
}

func trimLastRune(s string) string {
	_, size := utf8.DecodeLastRuneInString(s)
	return s[:len(s)-size]
}

// formatControl renders a plugin's configuration handle for display.
func formatControl(v any) string {
	switch c := v.(type) {
	case nil:
		return "none"
	case json.RawMessage:
		return string(c)
	case fmt.Stringer:
		return c.String()
	}

	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}

	return fmt.Sprintf("%v", v)
}

// keyIndex maps the digits 1..n to key indexes.
func keyIndex(s string, n int) (int, bool) {
	if len(s) != 1 || s[0] < '1' || s[0] > '9' {
		return 0, false
	}
	k := int(s[0] - '1')

	return k, k < n
}

// View renders the current state of the model.
func (m model) View() string {
	var b strings.Builder

	brightness, keys := m.deck.snapshot()
	b.WriteString(styleTitle.Render("keydeck simulator"))
	b.WriteString(styleSubtle.Render(fmt.Sprintf("  brightness %d%%", brightness)))
	b.WriteString("\n\n")
	b.WriteString(renderGrid(keys))
	b.WriteString("\n\n")

	switch m.mode {
	case modePick:
		b.WriteString(fmt.Sprintf("Pick an action: %s_\n", m.filter))
		if len(m.matches) == 0 {
			b.WriteString(styleSubtle.Render("  no matching actions") + "\n")
		}
		for i, d := range m.matches {
			id := d.ActionID
			if id == "" {
				id = d.ActionType.String()
			}
			line := fmt.Sprintf("  %s (%s)", d.ActionName, id)
			if i == m.selected {
				line = styleSelected.Render(line)
			}
			b.WriteString(line + "\n")
		}
	case modeTarget:
		b.WriteString(fmt.Sprintf("Press 1-%d to assign %s, Esc to cancel\n", len(keys), m.pending.ActionName))
	case modeConfigure:
		b.WriteString(fmt.Sprintf("Press 1-%d to configure a key, Esc to cancel\n", len(keys)))
	case modeEdit:
		b.WriteString(fmt.Sprintf("Key %d %s: %s_\n", m.editKey+1, m.editType, m.input))
		b.WriteString(styleSubtle.Render("Enter to save, Esc to cancel") + "\n")
	default:
		b.WriteString(styleSubtle.Render(fmt.Sprintf(
			"1-%d: press key  a: assign  c: configure  r: rescan plugins  q: quit", len(keys))))
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString("\n" + m.status + "\n")
	}
	if m.details != "" {
		b.WriteString("\n" + m.details + "\n")
	}

	if m.journal != nil {
		b.WriteString("\n" + styleTitle.Render("Journal") + "\n")
		for _, line := range m.journal.Tail(journalLines) {
			b.WriteString(styleSubtle.Render(line) + "\n")
		}
	}

	return b.String()
}

func renderGrid(keys []keyState) string {
	var rows []string
	for start := 0; start < len(keys); start += keysPerRow {
		end := min(start+keysPerRow, len(keys))
		cells := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			label := keys[i].label
			if label == "" {
				label = styleSubtle.Render(fmt.Sprintf("%d", i+1))
			}
			cells = append(cells, styleKey.Render(label))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

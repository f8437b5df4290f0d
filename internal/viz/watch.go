package viz

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/remdrive/internal/metrics"
	"github.com/san-kum/remdrive/internal/permute"
	"github.com/san-kum/remdrive/internal/session"
	"github.com/san-kum/remdrive/internal/structure"
)

const historyCapacity = 600

type WatchOptions struct {
	Title    string
	Property string
	Steps    int // steps per advance
	Rounds   int // 0 runs until quit
	Shuffler permute.Source
	Observer metrics.Observer
}

// AdvancedMsg carries the outcome of one advance round.
type AdvancedMsg struct {
	Value      float64
	Structures []structure.Structure
	Err        error
}

// WatchModel advances a session one round at a time and charts the chosen
// property. Only one round is ever in flight; a shuffle requested meanwhile
// is applied when the round completes.
type WatchModel struct {
	ctx  context.Context
	sess session.Session
	opts WatchOptions

	values     []float64
	structures []structure.Structure
	perms      [][]int
	round      int
	step       int

	running bool
	busy    bool
	pending bool
	err     error
	canvas  *Canvas
}

func NewWatchModel(ctx context.Context, sess session.Session, opts WatchOptions) *WatchModel {
	if opts.Property == "" {
		opts.Property = "potential"
	}
	if opts.Steps <= 0 {
		opts.Steps = 10
	}
	if opts.Shuffler == nil {
		opts.Shuffler = permute.NewRandom()
	}
	return &WatchModel{
		ctx:     ctx,
		sess:    sess,
		opts:    opts,
		running: true,
		canvas:  NewCanvas(30, 10),
	}
}

func (m *WatchModel) Init() tea.Cmd {
	m.busy = true
	return m.advance()
}

func (m *WatchModel) advance() tea.Cmd {
	sess, ctx, steps, prop := m.sess, m.ctx, m.opts.Steps, m.opts.Property
	return func() tea.Msg {
		if err := sess.Advance(ctx, steps); err != nil {
			return AdvancedMsg{Err: err}
		}
		v, err := sess.Property(prop)
		if err != nil {
			return AdvancedMsg{Err: err}
		}
		st, err := sess.Structures()
		return AdvancedMsg{Value: v, Structures: st, Err: err}
	}
}

func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
			if m.running && !m.busy && m.err == nil {
				m.busy = true
				return m, m.advance()
			}
		case "s":
			if m.busy {
				m.pending = true
			} else {
				m.shuffle()
			}
		}
		return m, nil

	case AdvancedMsg:
		m.busy = false
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.record(msg)
		if m.pending {
			m.pending = false
			m.shuffle()
		}
		if m.opts.Rounds > 0 && m.round >= m.opts.Rounds {
			return m, tea.Quit
		}
		if m.running && m.err == nil {
			m.busy = true
			return m, m.advance()
		}
	}
	return m, nil
}

func (m *WatchModel) record(msg AdvancedMsg) {
	m.step += m.opts.Steps
	cp := metrics.Checkpoint{Round: m.round, Step: m.step, Property: m.opts.Property, Value: msg.Value}
	m.round++

	m.values = append(m.values, msg.Value)
	if len(m.values) > historyCapacity {
		m.values = m.values[1:]
	}
	m.structures = msg.Structures
	if m.opts.Observer != nil {
		m.opts.Observer.OnCheckpoint(cp)
	}
}

func (m *WatchModel) shuffle() {
	structures, err := m.sess.Structures()
	if err != nil {
		m.err = err
		return
	}
	perm := permute.Shuffle(m.opts.Shuffler, structures)
	if err := m.sess.SetStructures(structures); err != nil {
		m.err = err
		return
	}
	m.structures = structures
	m.perms = append(m.perms, perm)
	if m.opts.Observer != nil {
		m.opts.Observer.OnReorder(m.round, perm)
	}
}

func (m *WatchModel) Values() []float64 { return m.values }
func (m *WatchModel) Permutations() [][]int { return m.perms }
func (m *WatchModel) Err() error { return m.err }

func (m *WatchModel) View() string {
	var s strings.Builder
	title := m.opts.Title
	if title == "" {
		title = "remdrive"
	}
	s.WriteString(HeaderStyle.Render(title) + "\n")

	switch {
	case m.err != nil:
		s.WriteString(StatusError.Render("ERROR: "+m.err.Error()) + "\n")
	case m.running:
		s.WriteString(StatusRunning.Render("RUNNING") + "\n")
	default:
		s.WriteString(StatusPaused.Render("PAUSED") + "\n")
	}

	if chart := Plot(m.values, m.opts.Property); chart != "" {
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	value := "-"
	if len(m.values) > 0 {
		value = fmt.Sprintf("%.6f", m.values[len(m.values)-1])
	}
	s.WriteString(MetricLabel.Render("Step") + MetricValue.Render(fmt.Sprint(m.step)) + "\n")
	s.WriteString(MetricLabel.Render(m.opts.Property) + MetricValue.Render(value) + "\n")
	s.WriteString(MetricLabel.Render("Trend") + Sparkline(m.values, 30) + "\n")
	if len(m.perms) > 0 {
		s.WriteString(MetricLabel.Render("Order") + MetricValue.Render(formatPerm(m.perms[len(m.perms)-1])) + "\n")
	}
	s.WriteString(KeyHint.Render("SP:Pause S:Shuffle Q:Quit"))

	m.canvas.Clear()
	labels := make([]string, 0, len(m.structures))
	for _, st := range m.structures {
		labels = append(labels, st.Label)
	}
	if len(m.structures) > 0 {
		m.canvas.DrawStructure(m.structures[0])
	}
	left := canvasStyle.Render(m.canvas.String() + Subtle.Render(strings.Join(labels, " ")))
	return lipgloss.JoinHorizontal(lipgloss.Top, left, panelStyle.Render(s.String()))
}

package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/voltsim/internal/sim"
)

type startMsg sim.RunInfo

type recordMsg sim.Record

type doneMsg struct {
	res *sim.Result
	err error
}

// Feed forwards engine events to a bubbletea program. Sends give up once
// ctx is done so a closed view never stalls the engine.
type Feed struct {
	ctx context.Context
	ch  chan tea.Msg
}

func NewFeed(ctx context.Context, buffer int) *Feed {
	return &Feed{ctx: ctx, ch: make(chan tea.Msg, buffer)}
}

func (f *Feed) send(msg tea.Msg) {
	select {
	case f.ch <- msg:
	case <-f.ctx.Done():
	}
}

func (f *Feed) OnRunStart(info sim.RunInfo)         { f.send(startMsg(info)) }
func (f *Feed) OnSample(r sim.Record)               { f.send(recordMsg(r)) }
func (f *Feed) OnRunEnd(res *sim.Result, err error) { f.send(doneMsg{res: res, err: err}) }

func (f *Feed) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-f.ch:
			return msg
		case <-f.ctx.Done():
			return nil
		}
	}
}

// Live shows the progress of one run with a trace of its total current.
type Live struct {
	name   string
	feed   *Feed
	cancel context.CancelFunc

	total   int
	last    sim.Record
	current []float64
	flagged int

	done bool
	res  *sim.Result
	err  error

	width int
}

func NewLive(name string, feed *Feed, cancel context.CancelFunc) Live {
	return Live{name: name, feed: feed, cancel: cancel, width: 80}
}

func (m Live) Init() tea.Cmd { return m.feed.wait() }

func (m Live) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case startMsg:
		m.total = msg.Samples
		return m, m.feed.wait()
	case recordMsg:
		m.last = sim.Record(msg)
		m.current = append(m.current, msg.Total)
		if msg.Flags != 0 {
			m.flagged++
		}
		return m, m.feed.wait()
	case doneMsg:
		m.done = true
		m.res, m.err = msg.res, msg.err
		return m, nil
	}
	return m, nil
}

func (m Live) progress() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(len(m.current)) / float64(m.total)
}

func (m Live) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.name) + "\n\n")
	b.WriteString(ProgressBar(m.progress(), 40))
	b.WriteString(fmt.Sprintf(" %d/%d\n", len(m.current), m.total))
	b.WriteString(row("t", fmt.Sprintf("%.4f s", m.last.T)) + "\n")
	b.WriteString(row("E", fmt.Sprintf("%+.4f V", m.last.E)) + "\n")
	b.WriteString(row("i", fmt.Sprintf("%+.4e A", m.last.Total)) + "\n")
	if m.flagged > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d flagged samples", m.flagged)) + "\n")
	}
	if len(m.current) > 1 {
		b.WriteString("\n" + asciigraph.Plot(m.current,
			asciigraph.Height(12),
			asciigraph.Width(max(m.width-12, 20)),
			asciigraph.Caption("total current (A)"),
		) + "\n")
	}
	switch {
	case m.err != nil:
		b.WriteString("\n" + Error(m.err) + "\n")
	case m.done:
		b.WriteString("\n" + okStyle.Render("done") + "\n")
	}
	b.WriteString("\n" + hintStyle.Render("q quit") + "\n")
	return b.String()
}

// Result is what the run returned, once it has finished.
func (m Live) Result() (*sim.Result, error) { return m.res, m.err }

// Run executes run under a live view. run must register the observer it is
// given; the view cancels ctx when the user quits early.
func Run(ctx context.Context, name string, run func(ctx context.Context, obs sim.RunObserver) (*sim.Result, error), opts ...tea.ProgramOption) (*sim.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	feed := NewFeed(ctx, 256)
	finished := make(chan struct{})
	var res *sim.Result
	var runErr error
	go func() {
		defer close(finished)
		res, runErr = run(ctx, feed)
	}()

	_, err := tea.NewProgram(NewLive(name, feed, cancel), opts...).Run()
	cancel()
	<-finished
	if err != nil {
		return res, err
	}
	return res, runErr
}

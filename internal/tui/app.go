package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/mpataki/boda/internal/models"
	"github.com/mpataki/boda/internal/state"
)

const (
	refreshEvery = 100 * time.Millisecond
	historyLimit = 200
	historyWidth = 34
	readTimeout  = time.Second
)

// Coordinator is the state the viewer reads and the sink for its actions.
type Coordinator interface {
	Snapshot() state.Snapshot
	Do(a models.Action) bool
}

// Reader is the read side of the execution store.
type Reader interface {
	Get(ctx context.Context, target models.Target) (*models.Execution, error)
	History(ctx context.Context, limit int) ([]models.Summary, error)
}

type App struct {
	coord  Coordinator
	reader Reader
	log    zerolog.Logger

	snap    state.Snapshot
	exec    *models.Execution
	history []models.Summary
	err     error

	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model

	width  int
	height int
}

func NewApp(coord Coordinator, reader Reader, log zerolog.Logger) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusRunning

	return &App{
		coord:    coord,
		reader:   reader,
		log:      log,
		snap:     coord.Snapshot(),
		viewport: viewport.New(80, 20),
		spinner:  sp,
		help:     help.New(),
	}
}

type tickMsg time.Time

type frameMsg struct {
	snap    state.Snapshot
	exec    *models.Execution
	history []models.Summary
	err     error
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadFrame, a.tickCmd(), a.spinner.Tick)
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		a.resize()
		return a, nil

	case tickMsg:
		return a, tea.Batch(a.loadFrame, a.tickCmd())

	case frameMsg:
		a.snap = msg.snap
		a.exec = msg.exec
		a.history = msg.history
		a.err = msg.err
		if a.err != nil {
			a.log.Debug().Err(a.err).Msg("frame load failed")
		}
		a.resize()
		a.viewport.SetContent(a.content())
		a.viewport.SetYOffset(a.snap.Navigation.Scroll)
		if !a.snap.Global.Running {
			return a, tea.Quit
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	action, ok := actionFor(msg)
	if !ok {
		return a, nil
	}
	if !a.coord.Do(action) {
		return a, tea.Quit
	}
	if action == models.ActionQuit {
		return a, tea.Quit
	}
	// Reflect the action without waiting for the next tick.
	return a, a.loadFrame
}

func (a *App) loadFrame() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()

	snap := a.coord.Snapshot()
	exec, err := a.reader.Get(ctx, snap.Navigation.Target)
	if err != nil {
		return frameMsg{snap: snap, err: err}
	}

	var history []models.Summary
	if snap.Navigation.ShowHistory {
		history, err = a.reader.History(ctx, historyLimit)
	}
	return frameMsg{snap: snap, exec: exec, history: history, err: err}
}

func (a *App) resize() {
	w, h := a.width, a.height
	if w == 0 || h == 0 {
		return
	}
	if a.snap.Navigation.ShowHistory {
		w -= historyWidth + 1
	}
	// header, rule, status line, help line
	h -= 4
	if a.snap.Navigation.ShowHelp {
		h -= 3
	}
	a.viewport.Width = max(w, 10)
	a.viewport.Height = max(h, 1)
}

func (a *App) content() string {
	if a.exec == nil || a.exec.Pending() {
		return ""
	}
	// Trailing blank rows let every line reach the top of the pane, so each
	// scroll offset up to the last line moves the view.
	return strings.TrimRight(a.exec.Content(), "\n") + strings.Repeat("\n", max(a.viewport.Height-1, 0))
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	historyStyle = lipgloss.NewStyle().
			Width(historyWidth).
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(lipgloss.Color("238"))
)

func (a *App) View() string {
	var b strings.Builder

	b.WriteString(a.viewHeader())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", max(a.width, 20))))
	b.WriteString("\n")

	body := a.viewBody()
	if a.snap.Navigation.ShowHistory {
		body = lipgloss.JoinHorizontal(lipgloss.Top, historyStyle.Render(a.viewHistory()), " "+body)
	}
	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(a.viewStatus())
	b.WriteString("\n")

	if a.snap.Navigation.ShowHelp {
		b.WriteString(a.help.FullHelpView(keys.FullHelp()))
	} else {
		b.WriteString(a.help.ShortHelpView(keys.ShortHelp()))
	}

	return b.String()
}

func (a *App) viewHeader() string {
	g, r := a.snap.Global, a.snap.Runner
	header := titleStyle.Render(fmt.Sprintf("Every %s: %s", formatInterval(g.Interval), strings.Join(g.Command, " ")))

	running := fmt.Sprintf("%d/%d running", r.InFlight, g.Concurrency)
	if r.InFlight > 0 {
		running = statusRunning.Render(running)
	} else {
		running = dimStyle.Render(running)
	}

	return header + "  " + running + "  " + dimStyle.Render("["+a.snap.Navigation.Target.String()+"]")
}

func (a *App) viewBody() string {
	if a.exec == nil {
		if a.snap.Navigation.Target.IsLatest() {
			return a.spinner.View() + " running..."
		}
		return dimStyle.Render("(no such execution)")
	}
	if a.exec.Pending() {
		return a.spinner.View() + fmt.Sprintf(" #%d running for %s", a.exec.ID, formatDuration(time.Since(a.exec.StartedAt)))
	}
	if a.exec.Lines() == 0 {
		return dimStyle.Render("(no output)")
	}
	return a.viewport.View()
}

func (a *App) viewStatus() string {
	if a.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", a.err))
	}
	if a.exec == nil {
		return ""
	}

	parts := []string{
		fmt.Sprintf("#%d", a.exec.ID),
		"started " + humanize.Time(a.exec.StartedAt),
	}
	if !a.exec.Pending() {
		parts = append(parts, formatExit(*a.exec.ExitCode), formatDuration(a.exec.Duration()))
	}
	return dimStyle.Render(strings.Join(parts, "  "))
}

func (a *App) viewHistory() string {
	if len(a.history) == 0 {
		return dimStyle.Render("(no executions yet)")
	}

	selected, _ := a.snap.Navigation.Target.ID()
	if a.snap.Navigation.Target.IsLatest() && a.exec != nil {
		selected = a.exec.ID
	}

	rows := a.viewport.Height
	if rows <= 0 {
		rows = len(a.history)
	}
	from, to := historyWindow(a.history, selected, rows)

	var lines []string
	for _, sum := range a.history[from:to] {
		line := fmt.Sprintf("#%-5d %s %s", sum.ID, sum.StartedAt.Format("15:04:05"), formatSummaryStatus(sum))
		if sum.ID == selected {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// historyWindow returns the slice bounds of at most rows summaries that keep
// the selected id in view, centred once it leaves the first screen.
func historyWindow(history []models.Summary, selected int64, rows int) (from, to int) {
	if rows >= len(history) {
		return 0, len(history)
	}
	for i, sum := range history {
		if sum.ID == selected && i >= rows {
			from = min(i-rows/2, len(history)-rows)
			break
		}
	}
	return from, from + rows
}

func formatSummaryStatus(sum models.Summary) string {
	if sum.Pending() {
		return statusRunning.Render("●")
	}
	if sum.ExitCode != nil && *sum.ExitCode == 0 {
		return statusComplete.Render("✓")
	}
	code := -1
	if sum.ExitCode != nil {
		code = *sum.ExitCode
	}
	return statusFailed.Render(fmt.Sprintf("✗ %d", code))
}

func formatExit(code int) string {
	if code == 0 {
		return statusComplete.Render("exit:0")
	}
	return statusFailed.Render(fmt.Sprintf("exit:%d", code))
}

func formatInterval(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

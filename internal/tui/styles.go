package tui

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/voltsim/internal/sim"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	valueStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	hintStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("238"))

	panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444466")).
		Padding(0, 1)
)

// ProgressBar draws a bar for fraction in [0, 1], green once it passes 80%.
func ProgressBar(fraction float64, width int) string {
	fraction = math.Max(0, math.Min(1, fraction))
	filled := int(fraction * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if fraction > 0.8 {
		return okStyle.Render(bar)
	}
	return warnStyle.Render(bar)
}

// Sparkline squeezes values into width block characters.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return strings.Repeat("─", max(width, 0))
	}
	chars := []rune("▁▂▃▄▅▆▇█")
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	step := max(len(values)/width, 1)
	var b strings.Builder
	for i := 0; i < width && i*step < len(values); i++ {
		idx := int((values[i*step] - lo) / span * float64(len(chars)-1))
		b.WriteRune(chars[max(0, min(idx, len(chars)-1))])
	}
	return b.String()
}

func row(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-22s", label)) + valueStyle.Render(value)
}

// Summary renders the diagnostics and metrics of a run as a bordered panel.
func Summary(name string, res *sim.Result) string {
	d := res.Diagnostics
	lines := []string{
		titleStyle.Render(name),
		row("samples", fmt.Sprintf("%d", res.Len())),
		row("species", strings.Join(res.Species, " ")),
		row("observables", strings.Join(res.Observables, " ")),
		row("newton iterations", fmt.Sprintf("%d (max %d)", d.NewtonIterations, d.MaxNewtonIterations)),
		row("min concentration", fmt.Sprintf("%.3e", d.MinConcentration)),
		row("substeps", fmt.Sprintf("%d (min dt %.3g s, %d backward Euler start-up)", d.Substeps, d.MinSubstep, d.StartupSubsteps)),
		row("elapsed", res.Elapsed.String()),
	}
	if d.Closed {
		lines = append(lines, row("mass residual", fmt.Sprintf("%.3e", d.MassBalanceResidual)))
	}
	if d.Clean() {
		lines = append(lines, okStyle.Render("clean run"))
	} else {
		lines = append(lines, warnStyle.Render(fmt.Sprintf(
			"flagged: %d negative, %d surface, %d reaction",
			d.NegativeSamples, d.SurfaceNonConverged, d.ReactionNonConverged)))
	}

	if len(res.Metrics) > 0 {
		names := make([]string, 0, len(res.Metrics))
		for k := range res.Metrics {
			names = append(names, k)
		}
		sort.Strings(names)
		lines = append(lines, "")
		for _, k := range names {
			lines = append(lines, row(k, fmt.Sprintf("%.6g", res.Metrics[k])))
		}
	}
	return panel.Render(strings.Join(lines, "\n"))
}

// Error renders err the way the CLI reports failures.
func Error(err error) string {
	return errStyle.Render("error: ") + err.Error()
}

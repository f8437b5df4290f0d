package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/remdrive/internal/metrics"
)

// Plot charts values with asciigraph. Non-finite values are dropped; fewer
// than two remaining values give an empty string.
func Plot(values []float64, caption string) string {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) < 2 {
		return ""
	}
	return asciigraph.Plot(finite,
		asciigraph.Height(10),
		asciigraph.Width(60),
		asciigraph.Caption(caption))
}

// Summary renders checkpoints as a table, with the replica ordering that
// was applied before each round when perms is given.
func Summary(checkpoints []metrics.Checkpoint, perms [][]int) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("ROUND", "STEP", "PROPERTY", "VALUE", "ORDER")

	for _, c := range checkpoints {
		order := "-"
		if c.Round > 0 && c.Round-1 < len(perms) {
			order = formatPerm(perms[c.Round-1])
		}
		t.Row(fmt.Sprint(c.Round), fmt.Sprint(c.Step), c.Property, fmt.Sprintf("%.6f", c.Value), order)
	}
	return t.Render()
}

func formatPerm(perm []int) string {
	parts := make([]string, len(perm))
	for i, p := range perm {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, " ")
}

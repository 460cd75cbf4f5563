package main

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/term"
)

var (
	borderColor = lipgloss.AdaptiveColor{Light: "#6C6CFF", Dark: "#6C6CFF"}
	okColor     = lipgloss.AdaptiveColor{Light: "#006400", Dark: "#9FF29A"}
	errColor    = lipgloss.AdaptiveColor{Light: "#8B0000", Dark: "#FF6B6B"}

	baseCell    = lipgloss.NewStyle().Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(okColor).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(errColor).Bold(true)
)

// styled reports whether w is a terminal that should get table styling.
func styled(w io.Writer, plain bool) bool {
	if plain {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

// render writes rows under headers, as a bordered table when fancy and as
// tab-separated lines otherwise. status, when non-negative, is the column
// holding PASS/FAIL markers.
func render(w io.Writer, fancy bool, headers []string, rows [][]string, status int) error {
	if !fancy {
		var b strings.Builder
		b.WriteString(strings.Join(headers, "\t"))
		b.WriteByte('\n')
		for _, r := range rows {
			b.WriteString(strings.Join(r, "\t"))
			b.WriteByte('\n')
		}
		_, err := io.WriteString(w, b.String())
		return err
	}

	hs := make([]string, len(headers))
	for i, h := range headers {
		hs[i] = headerStyle.Render(h)
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers(hs...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := baseCell
			if row < 0 || row >= len(rows) || col != status {
				return s
			}
			if rows[row][col] == statusPass {
				return s.Inherit(passStyle)
			}
			return s.Inherit(failStyle)
		})
	_, err := io.WriteString(w, t.Render()+"\n")
	return err
}

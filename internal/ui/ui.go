// Package ui renders command output for the terminal.
//
// Colors are only used when the output is a terminal; piped output is
// plain text with the same layout.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/pacelog/pacelog/internal/attach"
	"github.com/pacelog/pacelog/internal/goal"
	"github.com/pacelog/pacelog/internal/repo"
	pacesync "github.com/pacelog/pacelog/internal/sync"
)

// Renderer writes styled output to a writer.
type Renderer struct {
	out io.Writer

	title  lipgloss.Style
	header lipgloss.Style
	cell   lipgloss.Style
	good   lipgloss.Style
	warn   lipgloss.Style
	bad    lipgloss.Style
	muted  lipgloss.Style
}

// NewRenderer returns a renderer for out. Color is enabled only when out
// is a terminal.
func NewRenderer(out io.Writer) *Renderer {
	profile := termenv.Ascii
	if IsTerminal(out) {
		profile = termenv.NewOutput(out).EnvColorProfile()
	}
	return newRenderer(out, profile)
}

func newRenderer(out io.Writer, profile termenv.Profile) *Renderer {
	lg := lipgloss.NewRenderer(out)
	lg.SetColorProfile(profile)

	return &Renderer{
		out:    out,
		title:  lg.NewStyle().Bold(true),
		header: lg.NewStyle().Bold(true).Padding(0, 1),
		cell:   lg.NewStyle().Padding(0, 1),
		good:   lg.NewStyle().Foreground(lipgloss.Color("2")),
		warn:   lg.NewStyle().Foreground(lipgloss.Color("3")),
		bad:    lg.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		muted:  lg.NewStyle().Faint(true),
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (r *Renderer) table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.muted).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.header
			}
			return r.cell
		})
	return t.String()
}

// Status renders the per-entity sync status table and the icon queues.
func (r *Renderer) Status(s *repo.Status) {
	rows := make([][]string, 0, len(s.Entities))
	for _, e := range s.Entities {
		rows = append(rows, []string{
			e.Entity,
			fmt.Sprint(e.Synced),
			r.count(e.Pending, r.warn),
			r.count(e.Failed, r.bad),
			fmt.Sprint(e.Total()),
		})
	}

	fmt.Fprintln(r.out, r.title.Render("Sync status"))
	fmt.Fprintln(r.out, r.table([]string{"entity", "synced", "pending", "failed", "total"}, rows))
	fmt.Fprintf(r.out, "icon uploads queued: %s  icon deletes queued: %s\n",
		r.count(s.IconUploads, r.warn), r.count(s.IconDeletes, r.warn))

	switch {
	case s.Failed() > 0:
		fmt.Fprintln(r.out, r.bad.Render(fmt.Sprintf("%d record(s) failed; they retry after the next local edit", s.Failed())))
	case s.Pending() == 0 && s.IconUploads == 0 && s.IconDeletes == 0:
		fmt.Fprintln(r.out, r.good.Render("Everything is synced"))
	}
}

func (r *Renderer) count(n int, style lipgloss.Style) string {
	if n == 0 {
		return "0"
	}
	return style.Render(fmt.Sprint(n))
}

// SyncReports renders one line per family cycle plus a lane breakdown.
func (r *Renderer) SyncReports(reports []*pacesync.Report) {
	if len(reports) == 0 {
		fmt.Fprintln(r.out, r.muted.Render("No families ran"))
		return
	}
	for _, rep := range reports {
		switch {
		case rep.Empty():
			fmt.Fprintf(r.out, "%s %s\n", r.title.Render(rep.Family), r.muted.Render("nothing to sync"))
			continue
		case rep.Aborted:
			fmt.Fprintf(r.out, "%s %s after %d/%d chunks: %s\n", r.title.Render(rep.Family),
				r.bad.Render("aborted"), rep.ChunksSent, rep.ChunksTotal, rep.Error)
		default:
			fmt.Fprintf(r.out, "%s %s in %s (%d chunks)\n", r.title.Render(rep.Family),
				r.good.Render("synced"), rep.Duration.Round(time.Millisecond), rep.ChunksSent)
		}

		rows := make([][]string, 0, len(rep.Lanes))
		for _, l := range rep.Lanes {
			rows = append(rows, []string{
				l.Key,
				fmt.Sprint(l.Pending),
				fmt.Sprint(l.Synced),
				r.count(l.Failed, r.bad),
				fmt.Sprint(l.ServerWins),
			})
		}
		fmt.Fprintln(r.out, r.table([]string{"lane", "pending", "synced", "failed", "server wins"}, rows))
	}
}

// IconReports renders icon upload and delete runs.
func (r *Renderer) IconReports(reports []*attach.Report) {
	for _, rep := range reports {
		if rep.Queued == 0 {
			fmt.Fprintf(r.out, "icon %ss: %s\n", rep.Operation, r.muted.Render("queue empty"))
			continue
		}
		parts := []string{fmt.Sprintf("%d done", rep.Done)}
		if rep.Deferred > 0 {
			parts = append(parts, r.warn.Render(fmt.Sprintf("%d deferred", rep.Deferred)))
		}
		if rep.Dropped > 0 {
			parts = append(parts, fmt.Sprintf("%d dropped", rep.Dropped))
		}
		if rep.Failed > 0 {
			parts = append(parts, r.bad.Render(fmt.Sprintf("%d failed", rep.Failed)))
		}
		fmt.Fprintf(r.out, "icon %ss: %d queued, %s\n", rep.Operation, rep.Queued, strings.Join(parts, ", "))
	}
}

// Balance renders a goal balance.
func (r *Renderer) Balance(b goal.Balance) {
	state := r.good.Render("on track")
	if b.InDebt() {
		state = r.bad.Render("behind")
	}
	fmt.Fprintf(r.out, "%s %s to %s (%s)\n", r.title.Render("Goal balance"), b.StartDate, b.EndDate, state)
	fmt.Fprintln(r.out, r.table([]string{"days", "target", "actual", "balance"}, [][]string{{
		fmt.Sprint(b.DaysActive),
		formatQuantity(b.TotalTarget),
		formatQuantity(b.TotalActual),
		formatQuantity(b.CurrentBalance),
	}}))
}

// Stats renders goal statistics.
func (r *Renderer) Stats(s goal.Stats) {
	fmt.Fprintln(r.out, r.title.Render("Goal statistics"))
	fmt.Fprintln(r.out, r.table([]string{"days", "active", "achieved", "average", "max", "best streak"}, [][]string{{
		fmt.Sprint(s.TotalDays),
		fmt.Sprint(s.ActiveDays),
		fmt.Sprint(s.AchievedDays),
		formatQuantity(s.Average),
		formatQuantity(s.Max),
		fmt.Sprint(s.MaxConsecutiveDays),
	}}))
}

// InactiveDates renders the days without any logged quantity.
func (r *Renderer) InactiveDates(dates []string) {
	if len(dates) == 0 {
		fmt.Fprintln(r.out, r.good.Render("No inactive days"))
		return
	}
	fmt.Fprintf(r.out, "%s (%d)\n", r.title.Render("Inactive days"), len(dates))
	for _, d := range dates {
		fmt.Fprintln(r.out, "  "+d)
	}
}

// formatQuantity drops a trailing ".0".
func formatQuantity(q float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", q), ".0")
}

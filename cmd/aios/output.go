package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	json "github.com/goccy/go-json"
	"golang.org/x/term"

	"github.com/vanderheijden86/aios/pkg/analytics"
	"github.com/vanderheijden86/aios/pkg/loader"
	"github.com/vanderheijden86/aios/pkg/model"
	"github.com/vanderheijden86/aios/pkg/recommend"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"})
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"})
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#3FB950"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#D29922"})
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"})
)

// printer renders command results as styled text on a terminal, plain text
// when piped, or JSON.
type printer struct {
	w      io.Writer
	styled bool
	json   bool
}

func newPrinter(w io.Writer, jsonOut bool) *printer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return &printer{w: w, styled: styled && !jsonOut, json: jsonOut}
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) emit(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func priorityStyle(priority int) lipgloss.Style {
	switch {
	case priority >= recommend.PriorityOverdueTask:
		return errStyle
	case priority >= recommend.PriorityDueToday:
		return warnStyle
	}
	return dimStyle
}

func (p *printer) recommendations(title string, recs []model.Recommendation) error {
	if p.json {
		if recs == nil {
			recs = []model.Recommendation{}
		}
		return p.emit(recs)
	}
	fmt.Fprintln(p.w, p.style(headerStyle, fmt.Sprintf("%s (%d)", title, len(recs))))
	if len(recs) == 0 {
		fmt.Fprintln(p.w, p.style(dimStyle, "  nothing here"))
		return nil
	}
	for _, r := range recs {
		status := ""
		if r.Status != model.StatusActive {
			status = " " + string(r.Status)
		}
		fmt.Fprintf(p.w, "  %s %s%s\n", p.style(priorityStyle(r.Priority), fmt.Sprintf("[%2d]", r.Priority)), r.Title, status)
		if r.Description != "" {
			fmt.Fprintf(p.w, "       %s\n", r.Description)
		}
		fmt.Fprintf(p.w, "       %s\n", p.style(dimStyle, fmt.Sprintf("%s  %s  %s", r.ModuleID, r.Kind, r.ID)))
	}
	return nil
}

func (p *printer) resolved(r model.Recommendation) error {
	if p.json {
		return p.emit(r)
	}
	fmt.Fprintf(p.w, "%s %s\n", p.style(okStyle, string(r.Status)), r.Title)
	return nil
}

func (p *printer) run(res recommend.RunResult) error {
	if p.json {
		return p.emit(res)
	}
	fmt.Fprintf(p.w, "%s %d new, %d already active, %d rules fired\n",
		p.style(headerStyle, "Recommendations:"), len(res.Created), res.Skipped, res.Fired)
	for _, r := range res.Created {
		fmt.Fprintf(p.w, "  %s %s\n", p.style(okStyle, "+"), r.Title)
	}
	for _, f := range res.Failed {
		fmt.Fprintf(p.w, "  %s %s: %s\n", p.style(errStyle, "!"), f.Kind, f.Err)
	}
	for _, s := range res.Sources {
		if s.Error != nil || s.Discarded > 0 {
			fmt.Fprintf(p.w, "  %s %s\n", p.style(warnStyle, "~"), s)
		}
	}
	return nil
}

func (p *printer) queued(name model.EventName, queued int) error {
	if p.json {
		return p.emit(map[string]any{"event": name, "queued": queued})
	}
	fmt.Fprintf(p.w, "%s %s (%d queued)\n", p.style(okStyle, "logged"), name, queued)
	return nil
}

func (p *printer) imported(stats loader.Stats) error {
	if p.json {
		return p.emit(stats)
	}
	fmt.Fprintf(p.w, "%s %d notes, %d tasks, %d events\n", p.style(okStyle, "imported"), stats.Notes, stats.Tasks, stats.Events)
	if stats.Skipped > 0 {
		fmt.Fprintf(p.w, "  %s %d lines\n", p.style(warnStyle, "skipped"), stats.Skipped)
	}
	return nil
}

func (p *printer) privacy(on bool) error {
	if p.json {
		return p.emit(map[string]bool{"privacy_mode": on})
	}
	state := p.style(dimStyle, "off")
	if on {
		state = p.style(okStyle, "on")
	}
	fmt.Fprintf(p.w, "privacy mode %s\n", state)
	return nil
}

type flushOutput struct {
	Skipped     string     `json:"skipped,omitempty"`
	Sent        int        `json:"sent"`
	Delivered   int        `json:"delivered"`
	Resanitized int        `json:"resanitized"`
	Dropped     int        `json:"dropped"`
	Abandoned   bool       `json:"abandoned,omitempty"`
	Outcome     string     `json:"outcome,omitempty"`
	StatusCode  int        `json:"status_code,omitempty"`
	Error       string     `json:"error,omitempty"`
	NextAttempt *time.Time `json:"next_attempt,omitempty"`
}

func (p *printer) flush(rep analytics.FlushReport) error {
	out := flushOutput{
		Skipped:     rep.Skipped,
		Sent:        rep.Sent,
		Delivered:   rep.Delivered,
		Resanitized: rep.Resanitized,
		Dropped:     rep.Dropped,
		Abandoned:   rep.Abandoned,
		StatusCode:  rep.StatusCode,
	}
	if !rep.NextAttempt.IsZero() {
		out.NextAttempt = &rep.NextAttempt
	}
	if rep.Skipped == "" {
		out.Outcome = rep.Outcome.String()
	}
	if rep.Err != nil {
		out.Error = rep.Err.Error()
	}
	if p.json {
		return p.emit(out)
	}

	if rep.Skipped != "" {
		fmt.Fprintf(p.w, "%s %s\n", p.style(dimStyle, "skipped:"), rep.Skipped)
		return nil
	}
	style := okStyle
	if out.Outcome != "success" {
		style = warnStyle
	}
	fmt.Fprintf(p.w, "%s sent %d, delivered %d, dropped %d\n", p.style(style, out.Outcome), rep.Sent, rep.Delivered, rep.Dropped)
	if out.Error != "" {
		fmt.Fprintf(p.w, "  %s\n", p.style(errStyle, out.Error))
	}
	if !rep.NextAttempt.IsZero() {
		fmt.Fprintf(p.w, "  next attempt after %s\n", rep.NextAttempt.Format(time.RFC3339))
	}
	return nil
}

func (p *printer) stats(pipeline analytics.Stats, recs recommend.Statistics) error {
	if p.json {
		return p.emit(map[string]any{"analytics": pipeline, "recommendations": recs})
	}

	fmt.Fprintln(p.w, p.style(headerStyle, "Analytics"))
	fmt.Fprintf(p.w, "  enabled %t, privacy mode %t, %d queued\n", pipeline.Enabled, pipeline.PrivacyMode, pipeline.Queued)
	fmt.Fprintf(p.w, "  logged %d, delivered %d, resanitized %d\n", pipeline.Logged, pipeline.Delivered, pipeline.Resanitized)
	fmt.Fprintf(p.w, "  batches sent %d, retried %d, failed %d\n", pipeline.BatchesSent, pipeline.BatchesRetried, pipeline.BatchesFailed)
	if total := pipeline.TotalDropped(); total > 0 {
		reasons := make([]string, 0, len(pipeline.Dropped))
		for reason, n := range pipeline.Dropped {
			reasons = append(reasons, fmt.Sprintf("%s=%d", reason, n))
		}
		sort.Strings(reasons)
		fmt.Fprintf(p.w, "  %s %d (%s)\n", p.style(warnStyle, "dropped"), total, strings.Join(reasons, ", "))
	}

	fmt.Fprintln(p.w, p.style(headerStyle, "Recommendations"))
	fmt.Fprintf(p.w, "  %d total: %d active, %d accepted, %d declined\n", recs.Total, recs.Active, recs.Accepted, recs.Declined)
	fmt.Fprintf(p.w, "  acceptance rate %.0f%%\n", recs.AcceptanceRate*100)
	if recs.Accepted+recs.Declined > 0 {
		fmt.Fprintf(p.w, "  avg priority accepted %.1f, declined %.1f\n", recs.AvgAcceptedPriority, recs.AvgDeclinedPriority)
	}
	kinds := make([]string, 0, len(recs.ByKind))
	for k := range recs.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		ks := recs.ByKind[model.RecommendationKind(k)]
		fmt.Fprintf(p.w, "  %s %d total, %d accepted, %d declined\n",
			p.style(dimStyle, fmt.Sprintf("%-14s", k)), ks.Total, ks.Accepted, ks.Declined)
	}
	return nil
}

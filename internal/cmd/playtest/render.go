package playtest

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/louisbranch/storyroom/internal/services/narrator/event"
	"github.com/louisbranch/storyroom/internal/services/narrator/rules"
	"github.com/louisbranch/storyroom/internal/services/narrator/turngate"
)

type theme struct {
	narrative lipgloss.Style
	dice      lipgloss.Style
	success   lipgloss.Style
	failure   lipgloss.Style
	system    lipgloss.Style
	errorText lipgloss.Style
	prompt    lipgloss.Style
}

func newTheme() theme {
	parchment := lipgloss.Color("#f3e9d2")
	gold := lipgloss.Color("#e0b84c")
	mint := lipgloss.Color("#05ffa1")
	red := lipgloss.Color("#ff6b6b")
	muted := lipgloss.Color("#9ca3d8")

	return theme{
		narrative: lipgloss.NewStyle().
			Foreground(parchment).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(gold).
			Padding(0, 1).
			Width(78),
		dice:      lipgloss.NewStyle().Foreground(gold),
		success:   lipgloss.NewStyle().Foreground(mint).Bold(true),
		failure:   lipgloss.NewStyle().Foreground(red).Bold(true),
		system:    lipgloss.NewStyle().Foreground(muted).Italic(true),
		errorText: lipgloss.NewStyle().Foreground(red),
		prompt:    lipgloss.NewStyle().Foreground(gold).Bold(true),
	}
}

// renderer writes session events to a terminal.
type renderer struct {
	out   io.Writer
	theme theme
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, theme: newTheme()}
}

func (r *renderer) event(e event.Event) {
	switch e := e.(type) {
	case event.Narrative:
		fmt.Fprintln(r.out, r.theme.narrative.Render(strings.TrimSpace(e.Text)))
	case event.DiceRoll:
		r.diceRoll(e)
	case event.ModeTransition:
		line := fmt.Sprintf("mode -> %s", e.Mode)
		if e.Reason != "" {
			line += ": " + e.Reason
		}
		if len(e.Enemies) > 0 {
			line += " (" + strings.Join(e.Enemies, ", ") + ")"
		}
		r.system(line)
	case event.ActionRestriction:
		if len(e.CharacterIDs) == 0 {
			r.system("everyone may act")
			return
		}
		line := "only " + strings.Join(e.CharacterIDs, ", ") + " may act"
		if e.Reason != "" {
			line += ": " + e.Reason
		}
		r.system(line)
	case event.TurnEnd:
		r.system(strings.Repeat("-", 20))
	}
}

func (r *renderer) diceRoll(e event.DiceRoll) {
	header := fmt.Sprintf("%s %s DC %d", e.Ability, strings.ReplaceAll(string(e.CheckType), "_", " "), e.DC)
	if e.Reason != "" {
		header += " (" + e.Reason + ")"
	}
	if e.CheckType == event.CheckGroup {
		fmt.Fprintf(r.out, "%s %s: %d/%d %s\n",
			r.theme.dice.Render("[roll]"), header, e.Successes, len(e.Group), r.verdict(e.Success))
		for _, m := range e.Group {
			if m.Error != "" {
				fmt.Fprintf(r.out, "  %s: %s\n", m.CharacterID, r.theme.errorText.Render(m.Error))
				continue
			}
			fmt.Fprintf(r.out, "  %s: %s %s\n", m.Actor, total(m.Roll), r.verdict(m.Success))
		}
		return
	}
	fmt.Fprintf(r.out, "%s %s %s: %s %s\n",
		r.theme.dice.Render("[roll]"), e.Actor, header, total(e.Roll), r.verdict(e.Success))
}

func (r *renderer) verdict(success bool) string {
	if success {
		return r.theme.success.Render("success")
	}
	return r.theme.failure.Render("failure")
}

func (r *renderer) system(text string) {
	fmt.Fprintln(r.out, r.theme.system.Render(text))
}

func (r *renderer) errorf(format string, args ...any) {
	fmt.Fprintln(r.out, r.theme.errorText.Render(fmt.Sprintf(format, args...)))
}

func (r *renderer) promptFor(name string) {
	fmt.Fprint(r.out, r.theme.prompt.Render(name+"> "))
}

func (r *renderer) gate(status turngate.Status) {
	line := "gate: " + string(status.Kind)
	if len(status.AllowedIDs) > 0 {
		line += " [" + strings.Join(status.AllowedIDs, ", ") + "]"
	}
	if status.Reason != "" {
		line += " " + status.Reason
	}
	r.system(line)
}

func total(roll *rules.CheckResult) string {
	if roll == nil {
		return "-"
	}
	bonus := roll.Modifier + roll.Proficiency
	if len(roll.Rolls) > 1 {
		return fmt.Sprintf("%v kept %d %+d = %d", roll.Rolls, roll.Kept, bonus, roll.Total)
	}
	return fmt.Sprintf("%d %+d = %d", roll.Kept, bonus, roll.Total)
}

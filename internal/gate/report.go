package gate

import (
	"fmt"
	"strings"

	"github.com/xela07ax/proofkit-gate/internal/domain"
)

// RenderText — человекочитаемый отчёт для оператора: итог, построчно проверки
// с глифами, warning'и, рекомендации. Оператор должен понять, что делать,
// не читая исходники — stack trace отчётом не считается.
func RenderText(d *domain.GateDecision) string {
	var b strings.Builder

	verdict := "BLOCK"
	glyph := "❌"
	if d.CanPromote {
		verdict = "PROMOTE"
		glyph = "✅"
	}
	fmt.Fprintf(&b, "%s %s — %s\n", glyph, verdict, d.Summary)
	fmt.Fprintf(&b, "account: %s, evaluated at %s\n\n", d.AccountID, d.Timestamp.Format("2006-01-02 15:04:05 MST"))

	b.WriteString("Checks:\n")
	for _, name := range domain.CheckOrder {
		c, ok := d.Checks[name]
		if !ok {
			continue
		}
		mark := "❌"
		if c.Passed {
			mark = "✅"
		}
		severity := "advisory"
		if c.Required {
			severity = "required"
		}
		fmt.Fprintf(&b, "  %s %-18s [%s] %s\n", mark, name, severity, c.Details)
	}

	if len(d.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range d.Warnings {
			fmt.Fprintf(&b, "  ⚠ %s\n", w)
		}
	}

	if len(d.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for i, r := range d.Recommendations {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, r)
		}
	}

	return b.String()
}

package synthesis

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// FormatConflict renders a SlotAssignments with its implicated decisions
// highlighted: red when the conflict singles out exactly one slot,
// yellow when several slots are jointly implicated, plain otherwise —
// plus leading/trailing "!" markers when the conflict implicates the
// precondition/postcondition boundary rather than any slot choice.
// SUPPLEMENTED FEATURES #4: the Go analogue of
// SlotAssignmentConflictDisplay, ported from the `colored`-crate version
// onto github.com/fatih/color.
func FormatConflict(a SlotAssignments, c ConflictClause) string {
	var b strings.Builder
	if c.Precondition {
		b.WriteString("!")
	} else {
		b.WriteString(" ")
	}
	b.WriteString("[")
	unit := c.Len() == 1
	for i, choice := range a.choices {
		token := fmt.Sprintf("%04d", choice)
		if c.IncludesIndex(i) {
			if unit {
				token = color.RedString(token)
			} else {
				token = color.YellowString(token)
			}
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(token)
	}
	b.WriteString("]")
	if c.Postcondition {
		b.WriteString("!")
	} else {
		b.WriteString(" ")
	}
	return b.String()
}

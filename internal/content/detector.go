package content

import (
	"fmt"
	"strings"
	"ticketwatch/pkg/domain"

	"github.com/pmezard/go-difflib/difflib"
)

// LineDetector compares normalized content line by line. Indentation and
// blank lines are ignored; any added, removed or changed line is a change.
type LineDetector struct {
	// MaxChanges caps the lines returned by Changes. Zero means no cap.
	MaxChanges int
}

// NewDetector returns a LineDetector whose Changes output is capped at
// maxChanges lines.
func NewDetector(maxChanges int) LineDetector {
	return LineDetector{MaxChanges: maxChanges}
}

// HasChanged reports whether current differs from previous. A nil previous
// is the cold start and never counts as a change.
func (d LineDetector) HasChanged(previous *domain.Snapshot, current domain.Snapshot) bool {
	if previous == nil {
		return false
	}

	for _, op := range opCodes(previous.Content, current.Content) {
		if op.Tag != 'e' {
			return true
		}
	}

	return false
}

// Changes lists removed lines prefixed with "- " and added lines prefixed
// with "+ ". A replaced line shows up as both.
func (d LineDetector) Changes(previous, current string) []string {
	a, b := lines(previous), lines(current)

	var out []string
	for _, op := range difflib.NewMatcherWithJunk(a, b, false, nil).GetOpCodes() {
		if op.Tag == 'r' || op.Tag == 'd' {
			for _, l := range a[op.I1:op.I2] {
				out = append(out, "- "+l)
			}
		}
		if op.Tag == 'r' || op.Tag == 'i' {
			for _, l := range b[op.J1:op.J2] {
				out = append(out, "+ "+l)
			}
		}
	}

	if d.MaxChanges > 0 && len(out) > d.MaxChanges {
		more := len(out) - d.MaxChanges
		out = append(out[:d.MaxChanges:d.MaxChanges], fmt.Sprintf("... %d more", more))
	}

	return out
}

func opCodes(previous, current string) []difflib.OpCode {
	// autojunk would treat frequent lines such as "</div>" as noise
	return difflib.NewMatcherWithJunk(lines(previous), lines(current), false, nil).GetOpCodes()
}

func lines(s string) []string {
	raw := strings.Split(s, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}

	return out
}

package cuts

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/eternnoir/llmcuts/pkg/timecode"
)

// ErrInvalidLine is wrapped by ParseManual for lines it cannot read
var ErrInvalidLine = errors.New("invalid cut line")

var manualLine = regexp.MustCompile(`^(\S+)\s*-\s*(\S+?)(?:\s+-\s+(.*))?$`)

// ParseManual reads hand-written cuts, one per line:
//
//	HH:MM:SS - HH:MM:SS[ - title[ - description]]
//
// Blank lines are skipped. source names the input in error messages.
func ParseManual(text, source string) ([]Cut, error) {
	if source == "" {
		source = "input"
	}

	var out []Cut
	sc := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		m := manualLine.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("%s:%d: %w: %q", source, lineNo, ErrInvalidLine, line)
		}
		start, end := m[1], m[2]
		if !timecode.IsClock(start) || !timecode.IsClock(end) {
			return nil, fmt.Errorf("%s:%d: %w: times must be HH:MM:SS", source, lineNo, ErrInvalidLine)
		}

		c := Cut{
			ID:          len(out) + 1,
			Start:       start,
			End:         end,
			ContentType: "manual",
		}
		if c.Seconds() <= 0 {
			return nil, fmt.Errorf("%s:%d: %w: end must be after start", source, lineNo, ErrInvalidLine)
		}

		if rest := strings.TrimSpace(m[3]); rest != "" {
			title, desc, _ := strings.Cut(rest, " - ")
			c.Title = strings.TrimSpace(title)
			c.Description = strings.TrimSpace(desc)
		}
		if c.Title == "" {
			c.Title = fmt.Sprintf("Cut %d", c.ID)
		}
		c.Duration = timecode.Format(c.Seconds())
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	return out, nil
}

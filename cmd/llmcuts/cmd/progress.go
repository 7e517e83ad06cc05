package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/eternnoir/llmcuts/pkg/export"
	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/pipeline"
)

const barWidth = 30

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressPrinter draws a single-line bar on terminals and falls back to log
// lines when output is redirected.
type progressPrinter struct {
	mu    sync.Mutex
	out   io.Writer
	tty   bool
	last  string
	drawn bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, tty: isTerminal(out)}
}

func (p *progressPrinter) pipeline(pr pipeline.Progress) {
	label := pr.Phase.Label()
	if pr.Message != "" {
		label += ": " + pr.Message
	}
	p.update(label, pr.Percent)
}

func (p *progressPrinter) export(pr export.Progress) {
	if pr.Err != nil {
		p.finish()
		logger.Warn().Err(pr.Err).Str("clip", pr.Title).Msg("Clip export failed")
		return
	}
	p.update(fmt.Sprintf("Exporting %d/%d %s", pr.Index, pr.Total, truncateString(pr.Title, 30)), pr.Percent)
}

func (p *progressPrinter) update(label string, percent float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.tty {
		if label != p.last {
			logger.Info().Float64("percent", percent).Msg(label)
			p.last = label
		}
		return
	}
	filled := int(percent / 100 * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)
	fmt.Fprintf(p.out, "\r\033[K[%s] %5.1f%% %s", bar, percent, truncateString(label, 60))
	p.drawn = true
}

// finish ends the bar line so following output starts clean
func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
}

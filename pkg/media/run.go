package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ErrFFmpeg wraps every failed ffmpeg invocation.
var ErrFFmpeg = errors.New("ffmpeg failed")

const stderrTailBytes = 2048

// Run executes a compiled ffmpeg-go stream bound to ctx. Cancelling ctx kills
// the process. On failure the error carries the tail of ffmpeg's stderr.
func Run(ctx context.Context, stream *ffmpeg.Stream) error {
	compiled := stream.OverWriteOutput().Compile()
	if len(compiled.Args) == 0 {
		return fmt.Errorf("%w: empty command", ErrFFmpeg)
	}

	cmd := exec.CommandContext(ctx, compiled.Path, compiled.Args[1:]...)
	tail := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = tail

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v: %s", ErrFFmpeg, err, strings.TrimSpace(tail.String()))
	}
	return nil
}

// Args returns the argv ffmpeg-go would execute, without the binary.
func Args(stream *ffmpeg.Stream) []string {
	compiled := stream.OverWriteOutput().Compile()
	if len(compiled.Args) == 0 {
		return nil
	}
	return compiled.Args[1:]
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

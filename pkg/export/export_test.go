package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/media"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	size  int
	fail  map[string]bool
	onRun func()
}

func (f *fakeRunner) run(ctx context.Context, stream *ffmpeg.Stream) error {
	args := media.Args(stream)
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	if f.onRun != nil {
		f.onRun()
	}
	out := args[len(args)-1]
	if f.fail[filepath.Base(out)] {
		return errors.New("ffmpeg exploded")
	}
	return os.WriteFile(out, make([]byte, f.size), 0o644)
}

func writeVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talk.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func hasPair(args []string, flag, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func TestPreset(t *testing.T) {
	tests := []struct {
		quality Quality
		want    map[string]string
	}{
		{QualityOriginal, map[string]string{"-c:v": "copy", "-c:a": "copy"}},
		{QualityHigh, map[string]string{"-c:v": "libx264", "-crf": "18", "-preset": "medium", "-b:a": "192k"}},
		{QualityMedium, map[string]string{"-crf": "23", "-preset": "medium", "-b:a": "128k"}},
		{QualityLow, map[string]string{"-crf": "28", "-preset": "fast", "-b:a": "96k"}},
		{Quality("ultra"), map[string]string{"-c:v": "copy"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.quality), func(t *testing.T) {
			args := media.Args(ClipStream("in.mp4", 65, 30.5, "out.mp4", tt.quality))
			for flag, value := range tt.want {
				if !hasPair(args, flag, value) {
					t.Errorf("args %v missing %s %s", args, flag, value)
				}
			}
			if !hasPair(args, "-ss", "00:01:05.000") || !hasPair(args, "-t", "00:00:30.500") {
				t.Errorf("args %v missing timing", args)
			}
			if args[len(args)-1] != "out.mp4" {
				t.Errorf("last arg = %q, want out.mp4", args[len(args)-1])
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Intro: what/why?", "Intro_ what_why_"},
		{`a<b>c"d\e|f*g`, "a_b_c_d_e_f_g"},
		{"  ..hidden.. ", "hidden"},
		{"", "Untitled"},
		{" . ", "Untitled"},
		{strings.Repeat("x", 150), strings.Repeat("x", 100)},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFilenameKeepsRunes(t *testing.T) {
	in := strings.Repeat("é", 60) // 120 bytes
	got := SanitizeFilename(in)
	if len(got) > 100 || !strings.HasPrefix(in, got) {
		t.Errorf("SanitizeFilename() = %q (%d bytes)", got, len(got))
	}
}

func TestExportCut(t *testing.T) {
	video := writeVideo(t)
	out := t.TempDir()
	runner := &fakeRunner{size: 4096}
	e := New(WithRunner(runner.run))

	path, err := e.ExportCut(context.Background(), video, cuts.Cut{Start: "00:00:10", End: "00:00:40", Title: "Key idea"}, out, QualityHigh)
	if err != nil {
		t.Fatalf("ExportCut() error = %v", err)
	}
	if path != filepath.Join(out, "Key idea.mp4") {
		t.Errorf("ExportCut() = %q", path)
	}
	if len(runner.calls) != 1 || !hasPair(runner.calls[0], "-t", "00:00:30.000") {
		t.Errorf("calls = %v", runner.calls)
	}
}

func TestExportCutErrors(t *testing.T) {
	video := writeVideo(t)
	out := t.TempDir()

	tests := []struct {
		name    string
		video   string
		cut     cuts.Cut
		size    int
		wantErr error
	}{
		{"missing video", filepath.Join(out, "nope.mp4"), cuts.Cut{Start: "00:00:00", End: "00:00:10", Title: "a"}, 4096, nil},
		{"bad times", video, cuts.Cut{Start: "soon", End: "00:00:10", Title: "a"}, 4096, nil},
		{"empty range", video, cuts.Cut{Start: "00:00:10", End: "00:00:10", Title: "a"}, 4096, nil},
		{"tiny output", video, cuts.Cut{Start: "00:00:00", End: "00:00:10", Title: "a"}, 10, ErrOutputTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(WithRunner((&fakeRunner{size: tt.size}).run))
			_, err := e.ExportCut(context.Background(), tt.video, tt.cut, out, QualityOriginal)
			if err == nil {
				t.Fatal("ExportCut() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ExportCut() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExportBatch(t *testing.T) {
	video := writeVideo(t)
	out := t.TempDir()
	runner := &fakeRunner{size: 4096, fail: map[string]bool{"Broken.mp4": true}}
	e := New(WithRunner(runner.run))

	list := []cuts.Cut{
		{Start: "00:00:00", End: "00:00:30", Title: "Intro"},
		{Start: "00:00:30", End: "00:01:00", Title: "Broken"},
		{Start: "00:01:00", End: "00:01:30", Title: "Intro"},
	}
	var updates []Progress
	res, err := e.ExportBatch(context.Background(), video, list, out, QualityOriginal, func(p Progress) {
		updates = append(updates, p)
	})
	if err != nil {
		t.Fatalf("ExportBatch() error = %v", err)
	}

	wantOutputs := []string{filepath.Join(out, "Intro.mp4"), filepath.Join(out, "Intro_2.mp4")}
	if len(res.Outputs) != 2 || res.Outputs[0] != wantOutputs[0] || res.Outputs[1] != wantOutputs[1] {
		t.Errorf("Outputs = %v, want %v", res.Outputs, wantOutputs)
	}
	if len(res.Failed) != 1 || res.Failed[0].Cut.Title != "Broken" {
		t.Errorf("Failed = %+v", res.Failed)
	}
	if len(updates) != 6 {
		t.Fatalf("progress updates = %d, want 6", len(updates))
	}
	last := updates[len(updates)-1]
	if !last.Done || last.Percent != 100 || last.Total != 3 {
		t.Errorf("last progress = %+v", last)
	}
	if updates[3].Err == nil {
		t.Error("failed clip progress has no error")
	}
}

func TestExportBatchCancel(t *testing.T) {
	video := writeVideo(t)
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{size: 4096, onRun: cancel}
	e := New(WithRunner(runner.run))

	list := []cuts.Cut{
		{Start: "00:00:00", End: "00:00:30", Title: "One"},
		{Start: "00:00:30", End: "00:01:00", Title: "Two"},
	}
	res, err := e.ExportBatch(ctx, video, list, t.TempDir(), QualityOriginal, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ExportBatch() error = %v, want context.Canceled", err)
	}
	if len(runner.calls) != 1 || len(res.Outputs) != 1 {
		t.Errorf("calls = %d outputs = %v, want 1 each", len(runner.calls), res.Outputs)
	}
}

package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eternnoir/llmcuts/pkg/config"
	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/transcriber"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", "****"},
		{"sk-abcdefghijkl1234", "sk-...1234"},
	}
	for _, tt := range tests {
		if got := redact(tt.in); got != tt.want {
			t.Errorf("redact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClipDir(t *testing.T) {
	got := clipDir("clips", filepath.Join("videos", "Talk: Part 1.mp4"))
	if want := filepath.Join("clips", "Talk_ Part 1"); got != want {
		t.Errorf("clipDir() = %q, want %q", got, want)
	}
}

func TestPick(t *testing.T) {
	list := []cuts.Cut{{Title: "a"}, {Title: "b"}, {Title: "c"}}

	got, err := pick(list, []int{3, 1})
	if err != nil {
		t.Fatalf("pick() error = %v", err)
	}
	if len(got) != 2 || got[0].Title != "c" || got[1].Title != "a" {
		t.Errorf("pick() = %+v", got)
	}
	if _, err := pick(list, []int{4}); err == nil {
		t.Error("pick() out of range expected error")
	}
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := humanBytes(tt.in); got != tt.want {
			t.Errorf("humanBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTranscriptOutput(t *testing.T) {
	tr := &transcriber.Transcript{
		Text:     " hello there ",
		Segments: []transcriber.Segment{{ID: 0, Start: 0, End: 1.5, Text: "hello there"}},
	}

	tests := []struct {
		format   string
		wantPath string
		contains string
	}{
		{"text", "talk.txt", "hello there\n"},
		{"json", "talk.transcript.json", `"segments"`},
		{"srt", "talk.srt", "00:00:00,000 --> 00:00:01,500"},
	}
	for _, tt := range tests {
		if got := defaultTranscriptPath("talk.mp4", tt.format); got != tt.wantPath {
			t.Errorf("defaultTranscriptPath(%s) = %q, want %q", tt.format, got, tt.wantPath)
		}
		data, err := renderTranscript(tr, tt.format)
		if err != nil {
			t.Fatalf("renderTranscript(%s) error = %v", tt.format, err)
		}
		if !strings.Contains(string(data), tt.contains) {
			t.Errorf("renderTranscript(%s) = %q, want it to contain %q", tt.format, data, tt.contains)
		}
	}
}

func TestCutsParseFromStdin(t *testing.T) {
	input := "00:00:10 - 00:01:00 - Intro - Who we are\n\n00:02:00 - 00:03:30 - Demo\n"
	var out bytes.Buffer
	cutsParseCmd.SetIn(strings.NewReader(input))
	cutsParseCmd.SetOut(&out)
	t.Cleanup(func() {
		cutsParseCmd.SetIn(nil)
		cutsParseCmd.SetOut(nil)
		_ = cutsParseCmd.Flags().Set("json", "false")
	})
	if err := cutsParseCmd.Flags().Set("json", "true"); err != nil {
		t.Fatal(err)
	}

	if err := cutsParseCmd.RunE(cutsParseCmd, nil); err != nil {
		t.Fatalf("cuts parse error = %v", err)
	}
	var got []cuts.Cut
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if len(got) != 2 || got[0].Title != "Intro" || got[0].Description != "Who we are" || got[1].Duration != "00:01:30" {
		t.Errorf("parsed cuts = %+v", got)
	}
}

func TestCutsParseSaveNeedsVideo(t *testing.T) {
	cutsParseCmd.SetIn(strings.NewReader("00:00:10 - 00:01:00\n"))
	t.Cleanup(func() {
		cutsParseCmd.SetIn(nil)
		_ = cutsParseCmd.Flags().Set("save", "false")
	})
	_ = cutsParseCmd.Flags().Set("save", "true")

	if err := cutsParseCmd.RunE(cutsParseCmd, nil); err == nil {
		t.Error("cuts parse --save without --video expected error")
	}
}

func TestCutsTable(t *testing.T) {
	out := cutsTable([]cuts.Cut{{Start: "00:00:00", End: "00:00:30", Duration: "00:00:30", Title: "Opening", ContentType: "intro"}})
	for _, want := range []string{"Start", "Opening", "00:00:30", "intro"} {
		if !strings.Contains(out, want) {
			t.Errorf("cutsTable() missing %q:\n%s", want, out)
		}
	}
}

func TestLoadWatchConfigRejectsNonPositiveDurations(t *testing.T) {
	saved := appConfig
	appConfig = config.DefaultConfig()
	t.Cleanup(func() {
		appConfig = saved
		_ = watchCmd.Flags().Set("processing-timeout", "1h")
		_ = watchCmd.Flags().Set("interval", "5s")
	})

	tests := []struct {
		flag    string
		value   string
		wantErr string
	}{
		{"processing-timeout", "0s", "--processing-timeout must be positive"},
		{"processing-timeout", "-1m", "--processing-timeout must be positive"},
		{"interval", "0s", "--interval must be positive"},
	}
	for _, tt := range tests {
		_ = watchCmd.Flags().Set("processing-timeout", "1h")
		_ = watchCmd.Flags().Set("interval", "5s")
		if err := watchCmd.Flags().Set(tt.flag, tt.value); err != nil {
			t.Fatal(err)
		}
		_, err := loadWatchConfig(watchCmd, t.TempDir())
		if err == nil || err.Error() != tt.wantErr {
			t.Errorf("loadWatchConfig(--%s %s) error = %v, want %v", tt.flag, tt.value, err, tt.wantErr)
		}
	}

	_ = watchCmd.Flags().Set("processing-timeout", "30m")
	_ = watchCmd.Flags().Set("interval", "5s")
	cfg, err := loadWatchConfig(watchCmd, t.TempDir())
	if err != nil {
		t.Fatalf("loadWatchConfig() error = %v", err)
	}
	if cfg.ProcessingTimeout != 30*time.Minute {
		t.Errorf("loadWatchConfig() ProcessingTimeout = %v, want %v", cfg.ProcessingTimeout, 30*time.Minute)
	}
}

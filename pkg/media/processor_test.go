package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleProbe = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "r_frame_rate": "30000/1001", "avg_frame_rate": "30000/1001", "duration": "600.1"},
    {"codec_type": "audio", "codec_name": "aac", "sample_rate": "48000", "channels": 2}
  ],
  "format": {"duration": "600.120000", "bit_rate": "5000000", "size": "375075000"}
}`

func TestParseProbe(t *testing.T) {
	info, err := ParseProbe(sampleProbe)
	if err != nil {
		t.Fatalf("ParseProbe() error = %v", err)
	}

	if info.Duration != 600.12 {
		t.Errorf("Duration = %v, want 600.12", info.Duration)
	}
	if info.Resolution != "1920x1080" {
		t.Errorf("Resolution = %v, want 1920x1080", info.Resolution)
	}
	if info.FPS != 29.97 {
		t.Errorf("FPS = %v, want 29.97", info.FPS)
	}
	if !info.HasAudio || info.AudioCodec != "aac" {
		t.Errorf("HasAudio = %v AudioCodec = %v, want true/aac", info.HasAudio, info.AudioCodec)
	}
	if info.VideoCodec != "h264" {
		t.Errorf("VideoCodec = %v, want h264", info.VideoCodec)
	}
	if info.Size != 375075000 || info.BitRate != 5000000 {
		t.Errorf("Size/BitRate = %v/%v", info.Size, info.BitRate)
	}
}

func TestParseProbeEdgeCases(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantAudio bool
		wantDur   float64
	}{
		{"invalid json", "{", true, false, 0},
		{"video only", `{"streams":[{"codec_type":"video","width":640,"height":360}],"format":{"duration":"12"}}`, false, false, 12},
		{"duration from stream", `{"streams":[{"codec_type":"video","duration":"42.5"},{"codec_type":"audio"}],"format":{}}`, false, true, 42.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseProbe(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProbe() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if info.HasAudio != tt.wantAudio {
				t.Errorf("HasAudio = %v, want %v", info.HasAudio, tt.wantAudio)
			}
			if info.Duration != tt.wantDur {
				t.Errorf("Duration = %v, want %v", info.Duration, tt.wantDur)
			}
		})
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"25/1", 25},
		{"30000/1001", 29.97},
		{"24", 24},
		{"0/0", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := parseRate(tt.in); got != tt.want {
			t.Errorf("parseRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsSupported(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"talk.mp4", true},
		{"TALK.MOV", true},
		{"clip.mkv", true},
		{"stream.webm", true},
		{"song.mp3", false},
		{"notes.txt", false},
		{"noext", false},
	}

	for _, tt := range tests {
		if got := IsSupported(tt.path); got != tt.want {
			t.Errorf("IsSupported(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestExtractAudioStreamArgs(t *testing.T) {
	args := strings.Join(Args(ExtractAudioStream("in.mp4", "out.wav.partial")), " ")

	for _, want := range []string{"-i in.mp4", "-f wav", "-acodec pcm_s16le", "-ar 16000", "-ac 1", "-vn", "out.wav.partial", "-y"} {
		if !strings.Contains(args, want) {
			t.Errorf("ExtractAudioStream() args = %q, missing %q", args, want)
		}
	}
}

func TestProbeWithStub(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.mp4")
	if err := os.WriteFile(path, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &ProcessorImpl{probe: func(string) (string, error) { return sampleProbe, nil }}
	info, err := p.Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if info.Filename != "video.mp4" || info.Path != path {
		t.Errorf("Probe() filename/path = %v/%v", info.Filename, info.Path)
	}

	noAudio := &ProcessorImpl{probe: func(string) (string, error) {
		return `{"streams":[{"codec_type":"video"}],"format":{"duration":"3"}}`, nil
	}}
	if _, err := noAudio.ValidateFile(context.Background(), path); !errors.Is(err, ErrNoAudio) {
		t.Errorf("ValidateFile() error = %v, want ErrNoAudio", err)
	}

	txt := filepath.Join(t.TempDir(), "notes.txt")
	_ = os.WriteFile(txt, []byte("x"), 0o644)
	if _, err := p.ValidateFile(context.Background(), txt); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ValidateFile() error = %v, want ErrUnsupported", err)
	}
}

func TestProbeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &ProcessorImpl{probe: func(string) (string, error) { return sampleProbe, nil }}
	if _, err := p.Probe(ctx, "whatever.mp4"); !errors.Is(err, context.Canceled) {
		t.Errorf("Probe() error = %v, want context.Canceled", err)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{limit: 5}
	_, _ = tb.Write([]byte("hello "))
	_, _ = tb.Write([]byte("world"))
	if got := tb.String(); got != "world" {
		t.Errorf("tailBuffer = %q, want %q", got, "world")
	}
}

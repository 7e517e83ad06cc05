package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/media"
	"github.com/eternnoir/llmcuts/pkg/transcriber"
)

const (
	hashA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func openTemp(t *testing.T) *Manager {
	t.Helper()
	m, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return m
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := openTemp(t)

	if m.Has(KindTranscription, hashA) {
		t.Fatal("Has() = true before save")
	}
	if _, err := m.Load(KindTranscription, hashA, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}

	payload := TranscriptionPayload{
		Transcription: &transcriber.Transcript{Text: "hello", Segments: []transcriber.Segment{{Start: 0, End: 1, Text: "hello"}}},
		VideoInfo:     &media.VideoInfo{Filename: "a.mp4", Duration: 12.5},
	}
	if err := m.Save(KindTranscription, hashA, "videos/a.mp4", payload); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !m.Has(KindTranscription, hashA) {
		t.Error("Has() = false after save")
	}
	if m.Has(KindCuts, hashA) {
		t.Error("Has(cuts) = true, want false")
	}

	var got TranscriptionPayload
	rec, err := m.Load(KindTranscription, hashA, &got)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Transcription.Text != "hello" || got.VideoInfo.Duration != 12.5 {
		t.Errorf("Load() payload = %+v", got)
	}
	if rec.Hash != hashA || rec.CacheVersion != Version || !filepath.IsAbs(rec.VideoPath) {
		t.Errorf("Load() record = %+v", rec)
	}

	// envelope layout on disk
	raw, err := os.ReadFile(filepath.Join(m.Dir(), "transcriptions", hashA+".json"))
	if err != nil {
		t.Fatal(err)
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"hash", "video_path", "created_at", "cache_version", "payload"} {
		if _, ok := env[key]; !ok {
			t.Errorf("envelope missing %q", key)
		}
	}
}

func TestVersionMismatchIsMiss(t *testing.T) {
	m := openTemp(t)
	stale := `{"hash":"` + hashA + `","video_path":"/x.mp4","created_at":"2024-01-01T00:00:00Z","cache_version":"0.9","payload":{}}`
	if err := os.WriteFile(m.Path(KindTopics, hashA), []byte(stale), 0o644); err != nil {
		t.Fatal(err)
	}
	if m.Has(KindTopics, hashA) {
		t.Error("Has() = true for stale version")
	}
	if _, err := m.Load(KindTopics, hashA, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestCorruptRecordIsMiss(t *testing.T) {
	m := openTemp(t)
	if err := os.WriteFile(m.Path(KindCuts, hashA), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Load(KindCuts, hashA, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestInvalidKeys(t *testing.T) {
	m := openTemp(t)
	tests := []string{"", "../etc/passwd", "abc/def", strings.Repeat("a", 200)}
	for _, h := range tests {
		if err := m.Save(KindCuts, h, "/x.mp4", struct{}{}); err == nil {
			t.Errorf("Save(%q) expected error", h)
		}
		if m.Has(KindCuts, h) {
			t.Errorf("Has(%q) = true", h)
		}
	}
	if err := m.Save(Kind("bogus"), hashA, "/x.mp4", struct{}{}); err == nil {
		t.Error("Save(bogus kind) expected error")
	}
}

func TestEntriesClearAndStats(t *testing.T) {
	m := openTemp(t)

	final := &cuts.Final{Cuts: []cuts.Cut{{ID: 1, Start: "00:00:00", End: "00:01:00", Title: "A"}}}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(m.Save(KindTranscription, hashA, "/v/a.mp4", TranscriptionPayload{}))
	must(m.Save(KindTopics, hashA, "/v/a.mp4", TopicsPayload{Topics: &cuts.TopicsResult{}}))
	must(m.Save(KindCuts, hashA, "/v/a.mp4", CutsPayload{CutsData: final}))
	must(m.Save(KindTranscription, hashB, "/v/b.mp4", TranscriptionPayload{}))

	entries, err := m.Entries()
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Entries() = %d, want 2", len(entries))
	}
	byHash := map[string]Entry{}
	for _, e := range entries {
		byHash[e.Hash] = e
	}
	if a := byHash[hashA]; len(a.Kinds) != 3 || a.VideoPath != "/v/a.mp4" || !a.Has(KindCuts) {
		t.Errorf("entry A = %+v", a)
	}
	if b := byHash[hashB]; len(b.Kinds) != 1 || b.Has(KindTopics) {
		t.Errorf("entry B = %+v", b)
	}

	st, err := m.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.Videos != 2 || st.Records[KindTranscription] != 2 || st.Records[KindCuts] != 1 || st.Bytes == 0 {
		t.Errorf("Stats() = %+v", st)
	}

	e, err := m.Lookup("bbbb")
	if err != nil || e.Hash != hashB {
		t.Errorf("Lookup(bbbb) = %v, %v", e, err)
	}
	if _, err := m.Lookup("c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(c) error = %v, want ErrNotFound", err)
	}

	n, err := m.Clear(hashA)
	if err != nil || n != 3 {
		t.Errorf("Clear() = %d, %v, want 3", n, err)
	}
	if m.Has(KindCuts, hashA) {
		t.Error("record survived Clear()")
	}
	entries, _ = m.Entries()
	if len(entries) != 1 || entries[0].Hash != hashB {
		t.Errorf("Entries() after Clear = %+v", entries)
	}

	n, err = m.ClearAll()
	if err != nil || n != 1 {
		t.Errorf("ClearAll() = %d, %v, want 1", n, err)
	}
	entries, _ = m.Entries()
	if len(entries) != 0 {
		t.Errorf("Entries() after ClearAll = %+v", entries)
	}
}

func TestEntriesDropsMissingFiles(t *testing.T) {
	m := openTemp(t)
	if err := m.Save(KindTranscription, hashA, "/v/a.mp4", TranscriptionPayload{}); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(m.Path(KindTranscription, hashA)); err != nil {
		t.Fatal(err)
	}
	entries, err := m.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Entries() = %+v, want none", entries)
	}
}

func TestConcurrentSaves(t *testing.T) {
	m := openTemp(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := Kinds[i%len(Kinds)]
			if err := m.Save(kind, hashA, "/v/a.mp4", map[string]int{"i": i}); err != nil {
				t.Errorf("Save() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := m.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || len(entries[0].Kinds) != 3 {
		t.Errorf("Entries() = %+v", entries)
	}
}

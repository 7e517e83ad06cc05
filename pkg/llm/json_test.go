package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around", `Here you go: {"a":1} hope it helps`, `{"a":1}`, false},
		{"largest object wins", `{"a":1} and also {"b":[1,2,3]}`, `{"b":[1,2,3]}`, false},
		{"braces in strings", `note {"t":"a } b"} end`, `{"t":"a } b"}`, false},
		{"truncated array", `{"cuts":[{"start":"00:00:01","title":"A"},{"start":"00:0`, `{"cuts":[{"start":"00:00:01","title":"A"},{"start":"00:0"}]}`, false},
		{"dangling comma", `{"a":1,`, `{"a":1}`, false},
		{"dangling colon", `{"a":`, `{"a":null}`, false},
		{"empty", "   ", "", true},
		{"no json", "sorry, I cannot help", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var got struct {
		Topics []struct {
			Title string `json:"title"`
		} `json:"topics"`
	}
	content := "```json\n{\"topics\":[{\"title\":\"Intro\"},{\"title\":\"Deep"
	if err := DecodeJSON(content, &got); err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	if len(got.Topics) != 2 || got.Topics[1].Title != "Deep" {
		t.Errorf("DecodeJSON() = %+v", got)
	}
}

func TestRepairTruncatedEscape(t *testing.T) {
	got := repairTruncated(`{"a":"line\`)
	if !json.Valid([]byte(got)) {
		t.Errorf("repairTruncated() = %q, not valid JSON", got)
	}
}

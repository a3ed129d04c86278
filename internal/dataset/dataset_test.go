package dataset

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleSquad = `{
  "version": "v2.0",
  "data": [
    {
      "title": "Tokyo",
      "paragraphs": [
        {
          "context": "Tokyo is the capital of Japan. It hosts the national government.",
          "qas": [
            {
              "id": "q1",
              "question": "What is the capital of Japan?",
              "answers": [
                {"text": "Tokyo", "answer_start": 0},
                {"text": "Tokyo is", "answer_start": 0}
              ]
            },
            {
              "id": "q2",
              "question": "What does Tokyo host?",
              "answers": [{"text": "the national government", "answer_start": 40}]
            },
            {
              "id": "q3",
              "question": "Who founded Tokyo?",
              "is_impossible": true,
              "answers": []
            },
            {
              "id": "q4",
              "question": "What is unanswered?",
              "answers": []
            }
          ]
        }
      ]
    }
  ]
}`

func TestParseFlattens(t *testing.T) {
	c, err := Parse([]byte(sampleSquad))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if !reflect.DeepEqual(c.Questions, []string{"What is the capital of Japan?", "What does Tokyo host?"}) {
		t.Errorf("Questions = %v", c.Questions)
	}
	// First answer per question.
	if !reflect.DeepEqual(c.Answers, []string{"Tokyo", "the national government"}) {
		t.Errorf("Answers = %v", c.Answers)
	}
	if c.Contexts[0] != c.Contexts[1] {
		t.Errorf("contexts should repeat per question: %v", c.Contexts)
	}
}

func TestEncodeItems(t *testing.T) {
	c, err := Parse([]byte(sampleSquad))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inputs, targets, highlights := c.EncodeItems()
	if len(inputs) != 2 || len(targets) != 2 || len(highlights) != 2 {
		t.Fatalf("lengths = %d %d %d, want 2 2 2", len(inputs), len(targets), len(highlights))
	}
	if inputs[0] != c.Contexts[0] {
		t.Errorf("inputs[0] = %q", inputs[0])
	}
	if targets[1] != "What does Tokyo host?" {
		t.Errorf("targets[1] = %q", targets[1])
	}
	for i, h := range highlights {
		if h == nil {
			t.Fatalf("highlights[%d] is nil", i)
		}
		if !strings.Contains(inputs[i], *h) {
			t.Errorf("highlight %q not in context", *h)
		}
	}
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	if err == nil || !strings.Contains(err.Error(), "invalid JSON") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseRejectsWrongShape(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"data not array", `{"data": "nope"}`},
		{"missing data", `{"version": "v2.0"}`},
		{"paragraph without context", `{"data": [{"paragraphs": [{"qas": []}]}]}`},
		{"qa without question", `{"data": [{"paragraphs": [{"context": "x", "qas": [{"answers": []}]}]}]}`},
		{"answer without text", `{"data": [{"paragraphs": [{"context": "x", "qas": [{"question": "q", "answers": [{"answer_start": 0}]}]}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			if err == nil || !strings.Contains(err.Error(), "schema validation failed") {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.json")
	if err := os.WriteFile(path, []byte(sampleSquad), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

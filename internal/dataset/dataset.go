// Package dataset loads SQuAD-layout reading comprehension files and
// flattens them into question-generation training items.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// File is the top-level SQuAD JSON layout.
type File struct {
	Version string    `json:"version"`
	Data    []Article `json:"data"`
}

type Article struct {
	Title      string      `json:"title"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

type Paragraph struct {
	Context string `json:"context"`
	QAs     []QA   `json:"qas"`
}

type QA struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	IsImpossible bool     `json:"is_impossible"`
	Answers      []Answer `json:"answers"`
}

type Answer struct {
	Text        string `json:"text"`
	AnswerStart int    `json:"answer_start"`
}

// Corpus holds the flattened answerable items as parallel slices. The answer
// is the first one listed for each question.
type Corpus struct {
	Contexts  []string
	Questions []string
	Answers   []string
}

func (c *Corpus) Len() int {
	return len(c.Contexts)
}

// EncodeItems returns the question-generation training view: the context as
// input, the answer span as the highlight, and the question as the target.
func (c *Corpus) EncodeItems() (inputs, targets []string, highlights []*string) {
	inputs = make([]string, len(c.Contexts))
	copy(inputs, c.Contexts)
	targets = make([]string, len(c.Questions))
	copy(targets, c.Questions)

	answers := make([]string, len(c.Answers))
	copy(answers, c.Answers)
	highlights = make([]*string, len(answers))
	for i := range answers {
		highlights[i] = &answers[i]
	}
	return inputs, targets, highlights
}

// Load reads and parses a SQuAD file.
func Load(path string) (*Corpus, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return Parse(raw)
}

// Parse validates raw SQuAD JSON against the layout schema and flattens it.
// Unanswerable questions and questions without answers are skipped.
func Parse(raw []byte) (*Corpus, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	c := &Corpus{}
	for _, article := range f.Data {
		for _, para := range article.Paragraphs {
			for _, qa := range para.QAs {
				if qa.IsImpossible || len(qa.Answers) == 0 {
					continue
				}
				c.Contexts = append(c.Contexts, para.Context)
				c.Questions = append(c.Questions, qa.Question)
				c.Answers = append(c.Answers, qa.Answers[0].Text)
			}
		}
	}
	return c, nil
}

// Validate checks raw bytes against the SQuAD layout schema without
// flattening.
func Validate(raw []byte) error {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	var def any
	if err := json.Unmarshal([]byte(squadSchema), &def); err != nil {
		return nil, fmt.Errorf("parse embedded schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	const url = "schema://squad.json"
	if err := c.AddResource(url, def); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
})

const squadSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["data"],
  "properties": {
    "version": {"type": "string"},
    "data": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["paragraphs"],
        "properties": {
          "title": {"type": "string"},
          "paragraphs": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["context", "qas"],
              "properties": {
                "context": {"type": "string"},
                "qas": {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "required": ["question", "answers"],
                    "properties": {
                      "id": {"type": "string"},
                      "question": {"type": "string"},
                      "is_impossible": {"type": "boolean"},
                      "answers": {
                        "type": "array",
                        "items": {
                          "type": "object",
                          "required": ["text"],
                          "properties": {
                            "text": {"type": "string"},
                            "answer_start": {"type": "integer"}
                          }
                        }
                      }
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

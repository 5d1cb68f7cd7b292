package quizgen

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Question is one validated multiple-choice question.
type Question struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// Report counts what the validator saw and kept.
type Report struct {
	Received int
	Accepted int
}

func (r Report) Dropped() int { return r.Received - r.Accepted }

// questionSchema covers the per-record shape. Membership of correctAnswer
// in options is checked in accept.
const questionSchema = `{
	"type": "object",
	"required": ["question", "options", "correctAnswer"],
	"properties": {
		"question": {"type": "string", "pattern": "\\S"},
		"options": {
			"type": "array",
			"minItems": 4,
			"maxItems": 4,
			"uniqueItems": true,
			"items": {"type": "string"}
		},
		"correctAnswer": {"type": "string", "pattern": "\\S"}
	}
}`

var (
	compiledOnce sync.Once
	compiled     *jsonschema.Schema
	compileErr   error
)

func recordSchema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(questionSchema))
		if err != nil {
			compileErr = fmt.Errorf("parse question schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("schema://question.json", doc); err != nil {
			compileErr = fmt.Errorf("add question schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile("schema://question.json")
	})
	return compiled, compileErr
}

// Validate parses a normalized reply and keeps the well-formed questions in
// their original order. Malformed records are dropped, not reported as
// errors; the Report says how many.
func Validate(text string) ([]Question, Report, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		return nil, Report{}, &Error{Kind: KindMalformed, Err: err}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, Report{}, &Error{Kind: KindInvalidSchema, Err: fmt.Errorf("top-level value is %T, want object", doc)}
	}
	raw, ok := obj["questions"]
	if !ok {
		return nil, Report{}, &Error{Kind: KindInvalidSchema, Err: fmt.Errorf("missing questions field")}
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, Report{}, &Error{Kind: KindInvalidSchema, Err: fmt.Errorf("questions is %T, want array", raw)}
	}

	sch, err := recordSchema()
	if err != nil {
		return nil, Report{}, err
	}

	rep := Report{Received: len(items)}
	out := make([]Question, 0, len(items))
	for _, it := range items {
		q, ok := accept(sch, it)
		if !ok {
			continue
		}
		out = append(out, q)
	}
	rep.Accepted = len(out)

	if len(out) == 0 {
		return nil, rep, &Error{Kind: KindNoValidQuestions, Err: fmt.Errorf("0 of %d records passed", rep.Received)}
	}
	return out, rep, nil
}

func accept(sch *jsonschema.Schema, item any) (Question, bool) {
	if err := sch.Validate(item); err != nil {
		return Question{}, false
	}
	m := item.(map[string]any)
	q := Question{
		Question:      m["question"].(string),
		CorrectAnswer: m["correctAnswer"].(string),
	}
	for _, o := range m["options"].([]any) {
		q.Options = append(q.Options, o.(string))
	}
	for _, o := range q.Options {
		if o == q.CorrectAnswer {
			return q, true
		}
	}
	return Question{}, false
}

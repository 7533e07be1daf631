package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Reserved sample keys. Everything else in a raw sample is carried in Sample.Extra.
const (
	KeyUniqueID = "unique_id"
	KeyQuestion = "question"
	KeyAnswer   = "answer"
	KeyPred     = "pred"
)

// Sample is one prediction to be judged.
type Sample struct {
	UniqueID        string
	Question        string
	ReferenceAnswer string
	PredictedAnswer string
	// Extra holds every other raw field, including the raw id field rewritten to UniqueID.
	Extra map[string]any
}

// Fields returns the sample as a flat field map, the shape it had in the input.
func (s Sample) Fields() map[string]any {
	fields := make(map[string]any, len(s.Extra)+4)
	for k, v := range s.Extra {
		fields[k] = v
	}
	fields[KeyUniqueID] = s.UniqueID
	fields[KeyQuestion] = s.Question
	fields[KeyAnswer] = s.ReferenceAnswer
	fields[KeyPred] = s.PredictedAnswer
	return fields
}

func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Fields())
}

func (s *Sample) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*s = Sample{Extra: make(map[string]any)}
	for k, v := range fields {
		switch k {
		case KeyUniqueID:
			s.UniqueID = stringify(v)
		case KeyQuestion:
			s.Question = stringify(v)
		case KeyAnswer:
			s.ReferenceAnswer = stringify(v)
		case KeyPred:
			s.PredictedAnswer = stringify(v)
		default:
			s.Extra[k] = v
		}
	}
	return nil
}

// PredictionSet maps unique ids to samples. It is built once and never modified.
type PredictionSet struct {
	ids     []string
	samples map[string]Sample
}

// NewPredictionSet builds a set from samples whose UniqueIDs are already distinct.
func NewPredictionSet(samples []Sample) (*PredictionSet, error) {
	set := &PredictionSet{
		ids:     make([]string, 0, len(samples)),
		samples: make(map[string]Sample, len(samples)),
	}
	for _, s := range samples {
		if _, dup := set.samples[s.UniqueID]; dup {
			return nil, fmt.Errorf("duplicate unique id %q", s.UniqueID)
		}
		set.ids = append(set.ids, s.UniqueID)
		set.samples[s.UniqueID] = s
	}
	return set, nil
}

// IDs returns the unique ids in first-occurrence order. The slice is a copy.
func (p *PredictionSet) IDs() []string {
	out := make([]string, len(p.ids))
	copy(out, p.ids)
	return out
}

func (p *PredictionSet) Get(id string) (Sample, bool) {
	s, ok := p.samples[id]
	return s, ok
}

func (p *PredictionSet) Contains(id string) bool {
	_, ok := p.samples[id]
	return ok
}

func (p *PredictionSet) Len() int {
	return len(p.ids)
}

// Verdict is the judge's structured opinion of one sample.
type Verdict struct {
	Pred  string `json:"pred" jsonschema:"yes or no"`
	Score int    `json:"score" jsonschema:"integer score between 0 and 5"`
}

// UnmarshalJSON accepts fractional or quoted scores and truncates them toward zero.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var raw struct {
		Pred  any `json:"pred"`
		Score any `json:"score"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	score, err := CoerceScore(raw.Score)
	if err != nil {
		return err
	}

	v.Pred = stringify(raw.Pred)
	v.Score = score
	return nil
}

// CoerceScore converts a decoded number or numeric string into an integer score,
// truncating any fractional part.
func CoerceScore(value any) (int, error) {
	var f float64
	switch n := value.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("score %q is not a number", n.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("score %q is not a number", n)
		}
		f = parsed
	case nil:
		return 0, fmt.Errorf("score is missing")
	default:
		return 0, fmt.Errorf("score has unsupported type %T", value)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("score %v is not finite", f)
	}
	return int(math.Trunc(f)), nil
}

// AnnotationRecord pairs a verdict with the sample it judges. It is serialized as a
// two element JSON array: [verdict, sample].
type AnnotationRecord struct {
	Verdict Verdict
	Sample  Sample
}

func (r AnnotationRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.Verdict, r.Sample})
}

func (r *AnnotationRecord) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 2 {
		return fmt.Errorf("annotation record must have 2 elements, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &r.Verdict); err != nil {
		return fmt.Errorf("invalid verdict: %w", err)
	}
	if err := json.Unmarshal(parts[1], &r.Sample); err != nil {
		return fmt.Errorf("invalid sample: %w", err)
	}
	return nil
}

// CombinedResult maps unique ids to their persisted records.
type CombinedResult map[string]AnnotationRecord

// Metrics summarizes a combined result.
type Metrics struct {
	YesCount     int     `json:"Yes count"`
	NoCount      int     `json:"No count"`
	Accuracy     float64 `json:"Accuracy"`
	AverageScore float64 `json:"Average score"`
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

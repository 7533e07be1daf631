package loader

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode"

	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
	"github.com/rs/zerolog"
)

var ErrMissingField = errors.New("sample is missing a required field")

// fallbackIDField is used when a sample lacks the configured id field.
const fallbackIDField = "id"

type Loader struct {
	idField string
	logger  *zerolog.Logger
}

func NewLoader(idField string, logger *zerolog.Logger) *Loader {
	if idField == "" {
		idField = "video_name"
	}
	return &Loader{
		idField: idField,
		logger:  logger,
	}
}

// LoadFile reads predictions from path and builds the prediction set.
func (l *Loader) LoadFile(ctx context.Context, path string) (*models.PredictionSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open predictions: %w", err)
	}
	defer f.Close()

	return l.Load(ctx, f)
}

// Load reads either a JSON array or JSON Lines of samples and assigns every sample a
// unique id of the form <raw id>_<occurrence>.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*models.PredictionSet, error) {
	raw, err := decode(ctx, r)
	if err != nil {
		return nil, err
	}

	samples, err := Disambiguate(raw, l.idField)
	if err != nil {
		return nil, err
	}

	set, err := models.NewPredictionSet(samples)
	if err != nil {
		return nil, err
	}

	l.logger.Info().
		Int("samples", set.Len()).
		Str("id_field", l.idField).
		Msg("Predictions loaded")

	return set, nil
}

// Disambiguate converts raw samples into Samples. The k-th occurrence (0-indexed) of a
// raw id receives the suffix _k, so ids are distinct and depend only on input order.
func Disambiguate(raw []map[string]any, idField string) ([]models.Sample, error) {
	counts := make(map[string]int, len(raw))
	samples := make([]models.Sample, 0, len(raw))

	for i, fields := range raw {
		key := idField
		rawID, ok := fields[key]
		if !ok || rawID == nil {
			key = fallbackIDField
			rawID, ok = fields[key]
		}
		if !ok || rawID == nil {
			return nil, fmt.Errorf("sample %d: %w: %q", i, ErrMissingField, idField)
		}

		id := fmt.Sprint(rawID)
		n, seen := counts[id]
		if seen {
			n++
		}
		counts[id] = n
		uniqueID := fmt.Sprintf("%s_%d", id, n)

		sample := models.Sample{
			UniqueID: uniqueID,
			Extra:    make(map[string]any, len(fields)),
		}
		required := map[string]*string{
			models.KeyQuestion: &sample.Question,
			models.KeyAnswer:   &sample.ReferenceAnswer,
			models.KeyPred:     &sample.PredictedAnswer,
		}
		for name, dst := range required {
			v, ok := fields[name]
			if !ok || v == nil {
				return nil, fmt.Errorf("sample %d: %w: %q", i, ErrMissingField, name)
			}
			*dst = toString(v)
		}

		for k, v := range fields {
			if _, isRequired := required[k]; isRequired || k == models.KeyUniqueID {
				continue
			}
			sample.Extra[k] = v
		}
		sample.Extra[key] = uniqueID

		samples = append(samples, sample)
	}

	return samples, nil
}

func decode(ctx context.Context, r io.Reader) ([]map[string]any, error) {
	br := bufio.NewReader(r)
	if err := skipBOM(br); err != nil {
		return nil, fmt.Errorf("failed to read predictions: %w", err)
	}
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read predictions: %w", err)
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()

	if first == '[' {
		var raw []map[string]any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to parse predictions array: %w", err)
		}
		return raw, nil
	}

	var raw []map[string]any
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var fields map[string]any
		err := dec.Decode(&fields)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse prediction record %d: %w", line, err)
		}
		raw = append(raw, fields)
	}
	return raw, nil
}

// skipBOM drops a leading UTF-8 byte order mark.
func skipBOM(br *bufio.Reader) error {
	r, _, err := br.ReadRune()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}
	if r != '\uFEFF' {
		return br.UnreadRune()
	}
	return nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !unicode.IsSpace(rune(b)) {
			return b, br.UnreadByte()
		}
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

package diagnosis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"hydrodiag/internal/gateway/entity"
)

// score accepts 85, 85.0 or "85%" from the model.
type score float64

func (s *score) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = -1
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "%")
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("confidence %q is not a number", raw)
		}
		*s = score(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*s = score(f)
	return nil
}

func (s score) percent() (int, error) {
	f := float64(s)
	if math.IsNaN(f) || f < 0 || f > 100 {
		return 0, fmt.Errorf("confidence %v outside 0-100", f)
	}
	return int(math.Round(f)), nil
}

var urgencyAliases = map[string]entity.Urgency{
	"low":       entity.UrgencyLow,
	"medium":    entity.UrgencyMedium,
	"moderate":  entity.UrgencyMedium,
	"high":      entity.UrgencyHigh,
	"critical":  entity.UrgencyCritical,
	"urgent":    entity.UrgencyCritical,
	"emergency": entity.UrgencyCritical,
	"低":         entity.UrgencyLow,
	"中":         entity.UrgencyMedium,
	"高":         entity.UrgencyHigh,
	"緊急":        entity.UrgencyCritical,
}

// ParseUrgency maps the model's urgency wording onto the four known levels.
func ParseUrgency(raw string) (entity.Urgency, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if u, ok := urgencyAliases[key]; ok {
		return u, nil
	}
	return "", fmt.Errorf("unknown urgency %q", raw)
}

func decodeStrict(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return malformed("decode payload: %v", err)
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

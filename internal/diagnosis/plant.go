package diagnosis

import (
	"strings"

	"hydrodiag/internal/gateway/entity"
)

type plantWire struct {
	Crop       string          `json:"crop"`
	Diagnosis  string          `json:"diagnosis"`
	Confidence *score          `json:"confidence"`
	Cause      string          `json:"cause"`
	Remedies   []string        `json:"remedies"`
	Prevention string          `json:"prevention"`
	Urgency    string          `json:"urgency"`
	References []referenceWire `json:"references"`
}

type referenceWire struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// ParsePlantResult extracts and validates a plant diagnosis from model text.
// Low-confidence and "cannot diagnose" verdicts are valid results.
func ParsePlantResult(text string) (entity.PlantResult, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return entity.PlantResult{}, err
	}
	var w plantWire
	if err := decodeStrict(raw, &w); err != nil {
		return entity.PlantResult{}, err
	}
	label := strings.TrimSpace(w.Diagnosis)
	if label == "" {
		return entity.PlantResult{}, malformed("plant result has no diagnosis")
	}
	if w.Confidence == nil {
		return entity.PlantResult{}, malformed("plant result has no confidence")
	}
	confidence, err := w.Confidence.percent()
	if err != nil {
		return entity.PlantResult{}, malformed("%v", err)
	}
	urgency, err := ParseUrgency(w.Urgency)
	if err != nil {
		return entity.PlantResult{}, malformed("%v", err)
	}

	var refs []entity.Reference
	for _, r := range w.References {
		title := strings.TrimSpace(r.Title)
		url := strings.TrimSpace(r.URL)
		if title == "" && url == "" {
			continue
		}
		refs = append(refs, entity.Reference{Title: title, URL: url, Description: strings.TrimSpace(r.Description)})
	}
	return entity.PlantResult{
		Crop:       strings.TrimSpace(w.Crop),
		Diagnosis:  label,
		Confidence: confidence,
		Cause:      strings.TrimSpace(w.Cause),
		Remedies:   trimAll(w.Remedies),
		Prevention: strings.TrimSpace(w.Prevention),
		Urgency:    urgency,
		References: refs,
	}, nil
}

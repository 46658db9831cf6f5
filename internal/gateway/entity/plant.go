package entity

import "time"

// Urgency ranks how quickly a problem needs attention.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

type Reference struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PlantResult is the structured verdict for one plant image.
type PlantResult struct {
	Crop       string      `json:"crop"`
	Diagnosis  string      `json:"diagnosisLabel"`
	Confidence int         `json:"confidence"`
	Cause      string      `json:"cause"`
	Remedies   []string    `json:"remedies"`
	Prevention string      `json:"prevention"`
	Urgency    Urgency     `json:"urgency"`
	References []Reference `json:"references,omitempty"`
}

// PlantDiagnosis is a persisted single-shot diagnosis. It is never mutated after creation.
type PlantDiagnosis struct {
	ID          string      `json:"id"`
	UserID      UserID      `json:"userId"`
	ImageURL    string      `json:"imageUrl"`
	Description string      `json:"description,omitempty"`
	CropType    string      `json:"cropType,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
	Humidity    *float64    `json:"humidity,omitempty"`
	EC          *float64    `json:"ec,omitempty"`
	Result      PlantResult `json:"result"`
	CreatedAt   time.Time   `json:"createdAt"`
}

package diagnosis

import (
	"strings"

	"hydrodiag/internal/gateway/entity"
)

type Stage string

const (
	StageInProgress Stage = "in-progress"
	StageComplete   Stage = "complete"
)

var stageAliases = map[string]Stage{
	"in_progress": StageInProgress,
	"in-progress": StageInProgress,
	"questioning": StageInProgress,
	"質問中":         StageInProgress,
	"complete":    StageComplete,
	"completed":   StageComplete,
	"診断完了":        StageComplete,
}

// EquipmentReply is one validated backend reply in an equipment conversation.
// Exactly one of Question or Terminal is set, selected by Stage.
type EquipmentReply struct {
	Stage    Stage
	Question *ClarifyingQuestion
	Terminal *TerminalDiagnosis
	// Raw is the full model text the reply was extracted from.
	Raw string
}

type ClarifyingQuestion struct {
	Text string
}

type TerminalDiagnosis struct {
	Diagnosis        entity.EquipmentDiagnosis
	Remediation      entity.Remediation
	PreventiveAdvice string
}

func (r EquipmentReply) IsTerminal() bool {
	return r.Stage == StageComplete && r.Terminal != nil
}

type equipmentWire struct {
	Stage            string             `json:"stage"`
	NextQuestion     string             `json:"next_question"`
	Diagnosis        *equipmentDiagWire `json:"diagnosis"`
	Remediation      *remediationWire   `json:"remediation"`
	PreventiveAdvice string             `json:"preventive_advice"`
}

type equipmentDiagWire struct {
	Device            string   `json:"device"`
	Cause             string   `json:"cause"`
	Confidence        *score   `json:"confidence"`
	AlternativeCauses []string `json:"alternative_causes"`
	Urgency           string   `json:"urgency"`
}

type remediationWire struct {
	Immediate     string `json:"immediate"`
	Temporary     string `json:"temporary"`
	Permanent     string `json:"permanent"`
	ConsultExpert bool   `json:"consult_expert"`
}

// ParseEquipmentReply extracts and validates the structured payload of a model reply.
func ParseEquipmentReply(text string) (EquipmentReply, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return EquipmentReply{}, err
	}
	var w equipmentWire
	if err := decodeStrict(raw, &w); err != nil {
		return EquipmentReply{}, err
	}
	stage, ok := stageAliases[strings.ToLower(strings.TrimSpace(w.Stage))]
	if !ok {
		return EquipmentReply{}, malformed("unknown stage %q", w.Stage)
	}

	out := EquipmentReply{Stage: stage, Raw: text}
	switch stage {
	case StageInProgress:
		q := strings.TrimSpace(w.NextQuestion)
		if q == "" {
			return EquipmentReply{}, malformed("in-progress reply has no next_question")
		}
		out.Question = &ClarifyingQuestion{Text: q}
	case StageComplete:
		terminal, err := w.terminal()
		if err != nil {
			return EquipmentReply{}, err
		}
		out.Terminal = terminal
	}
	return out, nil
}

func (w equipmentWire) terminal() (*TerminalDiagnosis, error) {
	if w.Diagnosis == nil {
		return nil, malformed("complete reply has no diagnosis")
	}
	if w.Remediation == nil {
		return nil, malformed("complete reply has no remediation")
	}
	d := w.Diagnosis
	device := strings.TrimSpace(d.Device)
	cause := strings.TrimSpace(d.Cause)
	if device == "" || cause == "" {
		return nil, malformed("diagnosis requires device and cause")
	}
	if d.Confidence == nil {
		return nil, malformed("diagnosis has no confidence")
	}
	confidence, err := d.Confidence.percent()
	if err != nil {
		return nil, malformed("%v", err)
	}
	urgency, err := ParseUrgency(d.Urgency)
	if err != nil {
		return nil, malformed("%v", err)
	}
	return &TerminalDiagnosis{
		Diagnosis: entity.EquipmentDiagnosis{
			Device:            device,
			Cause:             cause,
			Confidence:        confidence,
			AlternativeCauses: trimAll(d.AlternativeCauses),
			Urgency:           urgency,
		},
		Remediation: entity.Remediation{
			Immediate:     strings.TrimSpace(w.Remediation.Immediate),
			Temporary:     strings.TrimSpace(w.Remediation.Temporary),
			Permanent:     strings.TrimSpace(w.Remediation.Permanent),
			ConsultExpert: w.Remediation.ConsultExpert,
		},
		PreventiveAdvice: strings.TrimSpace(w.PreventiveAdvice),
	}, nil
}

package entity

import (
	"strings"
	"time"
)

type TurnRole string

const (
	TurnRoleUser  TurnRole = "user"
	TurnRoleModel TurnRole = "model"
)

type TurnPart struct {
	Text string `json:"text"`
}

// Turn is one role-tagged entry of a conversation history.
type Turn struct {
	Role  TurnRole   `json:"role"`
	Parts []TurnPart `json:"parts"`
}

func NewTextTurn(role TurnRole, text string) Turn {
	return Turn{Role: role, Parts: []TurnPart{{Text: text}}}
}

// Text joins the text parts of the turn.
func (t Turn) Text() string {
	if len(t.Parts) == 1 {
		return t.Parts[0].Text
	}
	texts := make([]string, 0, len(t.Parts))
	for _, p := range t.Parts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n")
}

type SessionStatus string

const (
	SessionOngoing   SessionStatus = "ongoing"
	SessionCompleted SessionStatus = "completed"
)

// EquipmentDiagnosis is the terminal verdict that closes a session.
type EquipmentDiagnosis struct {
	Device            string   `json:"device"`
	Cause             string   `json:"cause"`
	Confidence        int      `json:"confidence"`
	AlternativeCauses []string `json:"alternativeCauses"`
	Urgency           Urgency  `json:"urgency"`
}

type Remediation struct {
	Immediate     string `json:"immediate"`
	Temporary     string `json:"temporary"`
	Permanent     string `json:"permanent"`
	ConsultExpert bool   `json:"consultExpert"`
}

// EquipmentSession is a persisted multi-turn equipment diagnosis conversation.
// FinalDiagnosis is set if and only if Status is SessionCompleted.
type EquipmentSession struct {
	ID                  string              `json:"id"`
	UserID              UserID              `json:"userId"`
	ConversationHistory []Turn              `json:"conversationHistory"`
	Status              SessionStatus       `json:"status"`
	FinalDiagnosis      *EquipmentDiagnosis `json:"finalDiagnosis"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

func (s EquipmentSession) Completed() bool {
	return s.Status == SessionCompleted
}

// Clone returns a copy that shares no slices or pointers with s.
func (s EquipmentSession) Clone() EquipmentSession {
	out := s
	out.ConversationHistory = CloneTurns(s.ConversationHistory)
	if s.FinalDiagnosis != nil {
		d := *s.FinalDiagnosis
		d.AlternativeCauses = CloneSlice(s.FinalDiagnosis.AlternativeCauses)
		out.FinalDiagnosis = &d
	}
	return out
}

func CloneTurns(in []Turn) []Turn {
	if in == nil {
		return nil
	}
	out := make([]Turn, len(in))
	for i, t := range in {
		out[i] = Turn{Role: t.Role, Parts: CloneSlice(t.Parts)}
	}
	return out
}

// CloneSlice copies in, keeping nil and empty slices distinct.
func CloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

package llmclient

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("empty response from LLM")

// LLMClient is the diagnosis backend: an ordered conversation in, model text out.
type LLMClient interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
	Close() error
}

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Image is inline media attached to a message.
type Image struct {
	MIMEType string
	Data     []byte
}

type Message struct {
	Role   Role
	Text   string
	Images []Image
}

// Request is a single generation call. Messages are replayed in order; the last
// one is the turn the model answers.
type Request struct {
	// Phase labels the call in logs ("plant", "equipment", "followup").
	Phase    string
	System   string
	Messages []Message
	// JSON asks the backend for application/json output.
	JSON bool
}

func (r Request) size() int {
	n := len(r.System)
	for _, m := range r.Messages {
		n += len(m.Text)
		for _, img := range m.Images {
			n += len(img.Data)
		}
	}
	return n
}

package llmclient

import (
	"context"
	"fmt"
	"sync"
)

// FakeReply is one scripted answer of FakeClient.
type FakeReply struct {
	Text string
	Err  error
}

// FakeClient returns scripted replies in order, then deterministic per-phase
// payloads for offline runs and tests.
type FakeClient struct {
	mu       sync.Mutex
	script   []FakeReply
	requests []Request
}

func NewFakeClient(script ...FakeReply) *FakeClient {
	return &FakeClient{script: script}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

// Push appends replies to the script.
func (f *FakeClient) Push(replies ...FakeReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, replies...)
}

// Requests returns the calls received so far.
func (f *FakeClient) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

func (f *FakeClient) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.requests = append(f.requests, cloneRequest(req))
	var next *FakeReply
	if len(f.script) > 0 {
		r := f.script[0]
		f.script = f.script[1:]
		next = &r
	}
	f.mu.Unlock()

	if next != nil {
		return next.Text, next.Err
	}
	return defaultFakeReply(req), nil
}

func defaultFakeReply(req Request) string {
	switch req.Phase {
	case "plant":
		return `{"crop":"Tomato","diagnosis":"Magnesium deficiency","confidence":72,` +
			`"cause":"Low Mg in the nutrient solution","remedies":["Add magnesium sulfate to the tank"],` +
			`"prevention":"Check solution EC and Mg weekly","urgency":"medium","references":[]}`
	case "equipment":
		users := 0
		for _, m := range req.Messages {
			if m.Role == RoleUser {
				users++
			}
		}
		if users < 3 {
			return fmt.Sprintf(`{"stage":"in-progress","next_question":"Fake question %d: what do you observe?"}`, users)
		}
		return `{"stage":"complete","diagnosis":{"device":"Circulation pump","cause":"Clogged intake filter",` +
			`"confidence":70,"alternative_causes":["Worn impeller"],"urgency":"medium"},` +
			`"remediation":{"immediate":"Switch the pump off","temporary":"Clean the filter",` +
			`"permanent":"Add a pre-filter","consult_expert":false},"preventive_advice":"Clean filters monthly"}`
	default:
		return "This is a fake answer for offline runs."
	}
}

func cloneRequest(req Request) Request {
	out := req
	out.Messages = make([]Message, len(req.Messages))
	for i, m := range req.Messages {
		out.Messages[i] = Message{Role: m.Role, Text: m.Text, Images: append([]Image(nil), m.Images...)}
	}
	return out
}

package llmclient

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowClient blocks until its context ends.
type slowClient struct{}

func (slowClient) Name() string { return "slow" }
func (slowClient) Close() error { return nil }
func (slowClient) Generate(ctx context.Context, _ Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestWithTimeoutCancelsSlowCalls(t *testing.T) {
	cli := Wrap(slowClient{}, WithTimeout(20*time.Millisecond))
	start := time.Now()
	_, err := cli.Generate(context.Background(), Request{Phase: "equipment"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithLoggingRecordsPhaseAndErrors(t *testing.T) {
	var buf bytes.Buffer
	fake := NewFakeClient(FakeReply{Text: "ok"}, FakeReply{Err: errors.New("quota exceeded")})
	cli := Wrap(fake, WithLogging(log.New(&buf, "", 0)))

	text, err := cli.Generate(context.Background(), Request{Phase: "plant", System: "sys", Messages: []Message{{Role: RoleUser, Text: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	_, err = cli.Generate(context.Background(), Request{Phase: "followup"})
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "LLM request (plant): 5 bytes, 1 messages")
	assert.Contains(t, out, "LLM error (followup): quota exceeded")
}

func TestRateLimitSpacesCalls(t *testing.T) {
	cli := Wrap(NewFakeClient(), RateLimit(10, 1))
	t.Cleanup(func() { _ = cli.Close() })

	start := time.Now()
	for i := 0; i < 2; i++ {
		_, err := cli.Generate(context.Background(), Request{})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRateLimitPhasesHaveSeparateBuckets(t *testing.T) {
	cli := Wrap(NewFakeClient(), RateLimit(1, 1))
	t.Cleanup(func() { _ = cli.Close() })

	start := time.Now()
	for _, phase := range []string{"plant", "equipment", "followup"} {
		_, err := cli.Generate(context.Background(), Request{Phase: phase})
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRateLimitHonoursDeadline(t *testing.T) {
	cli := Wrap(NewFakeClient(), RateLimit(0.1, 1))
	t.Cleanup(func() { _ = cli.Close() })

	_, err := cli.Generate(context.Background(), Request{Phase: "equipment"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = cli.Generate(ctx, Request{Phase: "equipment"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRateLimitDisabledReturnsInner(t *testing.T) {
	fake := NewFakeClient()
	assert.Same(t, fake, RateLimit(0, 0)(fake))
}

func TestFakeClientScriptThenDefaults(t *testing.T) {
	fake := NewFakeClient(FakeReply{Text: "scripted"})
	ctx := context.Background()

	got, err := fake.Generate(ctx, Request{Phase: "equipment"})
	require.NoError(t, err)
	assert.Equal(t, "scripted", got)

	got, err = fake.Generate(ctx, Request{Phase: "equipment", Messages: []Message{{Role: RoleUser, Text: "pump"}}})
	require.NoError(t, err)
	assert.Contains(t, got, `"in-progress"`)

	msgs := []Message{{Role: RoleUser}, {Role: RoleModel}, {Role: RoleUser}, {Role: RoleModel}, {Role: RoleUser}}
	got, err = fake.Generate(ctx, Request{Phase: "equipment", Messages: msgs})
	require.NoError(t, err)
	assert.Contains(t, got, `"complete"`)

	assert.Len(t, fake.Requests(), 3)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "mystery"})
	require.Error(t, err)

	cli, err := New(context.Background(), Config{Provider: "fake", Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "FakeLLM", cli.Name())
}

package realtime

import (
	"encoding/json"
	"testing"

	"github.com/PulseMediaLab/pulse/backend/internal/users"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, userID string) *Client {
	t.Helper()
	return newClient(users.User{
		ID:       userID,
		Username: userID + "-name",
	}, nil, zap.NewNop())
}

// nextEvent drains one queued outbound event from the client's send buffer.
func nextEvent(t *testing.T, client *Client) (string, json.RawMessage) {
	t.Helper()
	select {
	case raw := <-client.send:
		var envelope Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			t.Fatalf("failed to decode outbound event: %v", err)
		}
		return envelope.Event, envelope.Data
	default:
		t.Fatalf("expected a queued outbound event")
		return "", nil
	}
}

func assertNoEvent(t *testing.T, client *Client) {
	t.Helper()
	select {
	case raw := <-client.send:
		t.Fatalf("expected no queued event, got %s", raw)
	default:
	}
}

func mustMarshal(t *testing.T, value interface{}) json.RawMessage {
	t.Helper()
	encoded, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return encoded
}

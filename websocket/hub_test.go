package websocket

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPublishToUser(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	alice := hub.RegisterClient(nil, "user-alice")
	aliceTab := hub.RegisterClient(nil, "user-alice")
	bob := hub.RegisterClient(nil, "user-bob")

	event := SessionEvent{Type: "feedback_ready", SessionID: "session-1", Position: 2}
	hub.PublishToUser("user-alice", event)

	for _, client := range []*Client{alice, aliceTab} {
		select {
		case payload := <-client.Send:
			var got SessionEvent
			if err := json.Unmarshal(payload, &got); err != nil {
				t.Fatalf("failed to unmarshal event: %v", err)
			}
			if got != event {
				t.Errorf("expected %+v, got %+v", event, got)
			}
		case <-time.After(time.Second):
			t.Fatal("expected an event for the user's connection")
		}
	}

	select {
	case payload := <-bob.Send:
		t.Errorf("event leaked to another user: %s", payload)
	default:
	}
}

package companion

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

func TestHub_HelloThenReload(t *testing.T) {
	valID, branchID := uuid.New(), uuid.New()
	hub := NewHub(0, valID, branchID, nil)
	if err := hub.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+hub.Addr()+"/vt", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	var hello Message
	if err := json.Unmarshal(data, &hello); err != nil {
		t.Fatalf("unmarshal hello: %v", err)
	}
	if hello.Type != MessageTypeHello || hello.Val != valID.String() || hello.Branch != branchID.String() {
		t.Fatalf("unexpected hello message: %+v", hello)
	}

	// Give the accept handler's client registration a chance to complete.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	hub.BroadcastReload([]string{"a.ts"}, 5)

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("read reload: %v", err)
	}
	var reload Message
	if err := json.Unmarshal(data, &reload); err != nil {
		t.Fatalf("unmarshal reload: %v", err)
	}
	if reload.Type != MessageTypeReload || reload.Version != 5 || len(reload.Paths) != 1 || reload.Paths[0] != "a.ts" {
		t.Fatalf("unexpected reload message: %+v", reload)
	}
}

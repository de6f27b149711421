package dispatcher

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/snowp/rplay/internal/envelope"
	"github.com/snowp/rplay/internal/router"
	"github.com/snowp/rplay/internal/rpc"
	"github.com/snowp/rplay/internal/writer"
)

type testBackend struct {
	workerID int
	gate     chan struct{}
}

type tagBody struct {
	WorkerID int `json:"worker_id"`
}

func newTestRouter() *router.Router[*testBackend] {
	r := router.New[*testBackend]()
	r.Register("Tag", func(body []byte, b *testBackend) ([]byte, error) {
		return json.Marshal(tagBody{WorkerID: b.workerID})
	})
	r.Register("Block", func(body []byte, b *testBackend) ([]byte, error) {
		<-b.gate
		return json.Marshal(tagBody{WorkerID: b.workerID})
	})
	return r
}

func newTestFactory() BackendFactory[*testBackend] {
	var next atomic.Int32
	return func() *testBackend {
		id := int(next.Add(1)) - 1
		return &testBackend{workerID: id, gate: make(chan struct{})}
	}
}

func send(d *Dispatcher[*testBackend], events chan writer.Event, connID writer.ConnID, method string, session uint64) {
	sender := writer.NewSender(connID, events)
	d.Events() <- rpc.WorkItem{
		Envelope: &envelope.Envelope{Method: method, Session: session},
		Sender:   sender,
	}
}

func recvResponse(t *testing.T, events chan writer.Event, timeout time.Duration) *envelope.Envelope {
	t.Helper()
	select {
	case ev := <-events:
		return ev.Envelope
	case <-time.After(timeout):
		t.Fatal("timed out waiting for response")
		return nil
	}
}

func TestSessionAffinityStaysOnSameWorker(t *testing.T) {
	d := New(4, newTestFactory(), newTestRouter())
	defer d.Close()
	events := make(chan writer.Event, 16)

	send(d, events, 1, "Tag", 0)
	first := recvResponse(t, events, 2*time.Second)
	if first.Session == 0 {
		t.Fatal("expected a freshly allocated nonzero session")
	}
	var firstTag tagBody
	if err := json.Unmarshal(first.Body, &firstTag); err != nil {
		t.Fatalf("decode: %v", err)
	}

	for i := 0; i < 10; i++ {
		send(d, events, 1, "Tag", first.Session)
		resp := recvResponse(t, events, 2*time.Second)
		var tag tagBody
		if err := json.Unmarshal(resp.Body, &tag); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if tag.WorkerID != firstTag.WorkerID {
			t.Fatalf("session %d moved from worker %d to %d", first.Session, firstTag.WorkerID, tag.WorkerID)
		}
		if resp.Session != first.Session {
			t.Fatalf("expected session to be echoed unchanged, got %d want %d", resp.Session, first.Session)
		}
	}
}

func TestSlowHandlerDoesNotStallOtherSessions(t *testing.T) {
	d := New(2, newTestFactory(), newTestRouter())
	defer d.Close()
	events := make(chan writer.Event, 64)

	// Allocate sessions until two of them land on different workers; with
	// only 2 workers this takes at most a handful of attempts.
	type alloc struct {
		session  uint64
		workerID int
	}
	var a, b alloc
	found := false
	for i := 0; i < 20 && !found; i++ {
		send(d, events, 1, "Tag", 0)
		resp := recvResponse(t, events, 2*time.Second)
		var tag tagBody
		if err := json.Unmarshal(resp.Body, &tag); err != nil {
			t.Fatalf("decode: %v", err)
		}
		cur := alloc{session: resp.Session, workerID: tag.WorkerID}
		if a.session == 0 {
			a = cur
		} else if cur.workerID != a.workerID {
			b = cur
			found = true
		}
	}
	if !found {
		t.Fatal("never observed two sessions on different workers")
	}

	// Block a's worker indefinitely.
	send(d, events, 1, "Block", a.session)

	// b's worker must still answer promptly even though a handler is
	// blocked on a different worker in the pool.
	send(d, events, 2, "Tag", b.session)
	resp := recvResponse(t, events, 2*time.Second)
	if resp.Session != b.session {
		t.Fatalf("expected response for session %d, got %d", b.session, resp.Session)
	}
}

func TestUnknownSessionIsTreatedAsFreshAllocation(t *testing.T) {
	d := New(2, newTestFactory(), newTestRouter())
	defer d.Close()
	events := make(chan writer.Event, 16)

	send(d, events, 1, "Tag", 999)
	resp := recvResponse(t, events, 2*time.Second)
	if resp.Session != 999 {
		t.Fatalf("expected the unknown session id to be echoed back, got %d", resp.Session)
	}
}

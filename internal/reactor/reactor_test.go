package reactor

import (
	"testing"

	"github.com/snowp/rplay/internal/envelope"
	"github.com/snowp/rplay/internal/rpc"
	"github.com/snowp/rplay/internal/writer"
)

func newTestReactor() *Reactor {
	return &Reactor{
		conns:  make(map[writer.ConnID]*connState),
		fdToID: make(map[int]writer.ConnID),
	}
}

func TestNextIDPicksSmallestUnassigned(t *testing.T) {
	r := newTestReactor()
	if got := r.nextID(); got != 1 {
		t.Fatalf("expected first id to be 1, got %d", got)
	}

	r.conns[1] = &connState{}
	r.conns[2] = &connState{}
	if got := r.nextID(); got != 3 {
		t.Fatalf("expected next id to be 3, got %d", got)
	}

	delete(r.conns, 1)
	if got := r.nextID(); got != 1 {
		t.Fatalf("expected a freed id to be reused, got %d", got)
	}
}

func TestDeliverFansOutToAllListeners(t *testing.T) {
	r := newTestReactor()
	chA := make(chan rpc.WorkItem, 1)
	chB := make(chan rpc.WorkItem, 1)
	r.AddListener(chA)
	r.AddListener(chB)

	sender := writer.NewSender(1, make(chan writer.Event, 1))
	r.deliver(&envelope.Envelope{Method: "Echo", Session: 1}, sender)

	itemA := <-chA
	itemB := <-chB
	if itemA.Envelope.Method != "Echo" || itemB.Envelope.Method != "Echo" {
		t.Fatal("expected both listeners to receive the envelope")
	}
	// deliver must clone: mutating one listener's copy must not affect the other's.
	itemA.Envelope.Method = "Mutated"
	if itemB.Envelope.Method != "Echo" {
		t.Fatal("expected deliver to clone the envelope per listener")
	}
}

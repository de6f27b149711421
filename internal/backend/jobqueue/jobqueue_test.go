package jobqueue

import (
	"encoding/json"
	"testing"
)

func TestGetReturnsHighestPriority(t *testing.T) {
	b := New()
	b.Put("q1", 1, json.RawMessage(`{"n":1}`))
	highID := b.Put("q1", 10, json.RawMessage(`{"n":2}`))
	b.Put("q1", 5, json.RawMessage(`{"n":3}`))

	job := b.Get([]string{"q1"})
	if job == nil || job.ID != highID {
		t.Fatalf("expected highest-priority job %d, got %+v", highID, job)
	}
}

func TestGetChecksQueuesInOrder(t *testing.T) {
	b := New()
	b.Put("low", 100, json.RawMessage(`{}`))
	job := b.Get([]string{"empty", "low"})
	if job == nil || job.Queue != "low" {
		t.Fatalf("expected a job from 'low', got %+v", job)
	}
}

func TestGetEmptyReturnsNil(t *testing.T) {
	b := New()
	if job := b.Get([]string{"nothing"}); job != nil {
		t.Fatalf("expected nil from empty queues, got %+v", job)
	}
}

func TestDeleteRemovesQueuedJob(t *testing.T) {
	b := New()
	id := b.Put("q", 1, json.RawMessage(`{}`))
	if !b.Delete(id) {
		t.Fatal("expected delete of queued job to succeed")
	}
	if b.Delete(id) {
		t.Fatal("expected second delete of same id to fail")
	}
	if job := b.Get([]string{"q"}); job != nil {
		t.Fatalf("expected queue to be empty after delete, got %+v", job)
	}
}

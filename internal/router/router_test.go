package router

import (
	"errors"
	"testing"

	"github.com/snowp/rplay/internal/envelope"
)

func TestDispatchUnknownMethodReturnsEmptyEnvelope(t *testing.T) {
	r := New[int]()
	resp := r.Dispatch(&envelope.Envelope{Method: "NoSuchMethod", Session: 5}, 0)
	if resp.Method != "" || resp.Session != 5 || len(resp.Body) != 0 {
		t.Fatalf("unexpected response for unknown method: %+v", resp)
	}
}

func TestDispatchHandlerErrorPreservesMethodDropsBody(t *testing.T) {
	r := New[int]()
	r.Register("Fail", func(body []byte, backend int) ([]byte, error) {
		return nil, errors.New("boom")
	})
	resp := r.Dispatch(&envelope.Envelope{Method: "Fail", Session: 9}, 0)
	if resp.Method != "Fail" || resp.Session != 9 || len(resp.Body) != 0 {
		t.Fatalf("unexpected response for failing handler: %+v", resp)
	}
}

func TestDispatchSuccessReturnsBody(t *testing.T) {
	r := New[int]()
	r.Register("Echo", func(body []byte, backend int) ([]byte, error) {
		return body, nil
	})
	resp := r.Dispatch(&envelope.Envelope{Method: "Echo", Session: 1, Body: []byte("hi")}, 0)
	if resp.Method != "Echo" || resp.Session != 1 || string(resp.Body) != "hi" {
		t.Fatalf("unexpected response for successful handler: %+v", resp)
	}
}

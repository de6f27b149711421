// Package handlers wires the demo method handlers onto a Backend and
// registers them on a router.Router. It is the "user code" layer spec.md
// section 4.4 describes as having no state and no I/O of its own beyond
// what each handler's backend provides.
package handlers

import (
	"encoding/json"
	"sync/atomic"

	"github.com/snowp/rplay/internal/backend/jobqueue"
	"github.com/snowp/rplay/internal/backend/kvstore"
	"github.com/snowp/rplay/internal/backend/primesieve"
	"github.com/snowp/rplay/internal/backend/timeseries"
	"github.com/snowp/rplay/internal/envelope"
	"github.com/snowp/rplay/internal/router"
)

// Backend is the per-worker thread-local adapter handed to every handler
// in this package. It bundles the three demo backends adapted from the
// protohackers corpus (see SPEC_FULL.md 4.6) plus bookkeeping used only
// by the test-scenario handlers (WorkerID, Gate).
type Backend struct {
	WorkerID int
	Gate     chan struct{} // scenario 3: "Blocked" waits on this

	KV   *kvstore.Backend
	TS   *timeseries.Backend
	Jobs *jobqueue.Backend
}

var nextWorkerID atomic.Int64

// NewBackendFactory returns a dispatcher.BackendFactory[*Backend]: call it
// once per worker at pool construction. Each call gets a fresh, unshared
// Backend with a distinct WorkerID.
func NewBackendFactory() func() *Backend {
	return func() *Backend {
		return &Backend{
			WorkerID: int(nextWorkerID.Add(1)),
			Gate:     make(chan struct{}),
			KV:       kvstore.New(),
			TS:       timeseries.New(),
			Jobs:     jobqueue.New(),
		}
	}
}

// Register binds every demo handler in this package to r, sharing one
// read-only primesieve.Sieve across all workers for the IsPrime handler.
func Register(r *router.Router[*Backend], sieve *primesieve.Sieve) {
	r.Register("Echo", echoHandler)
	r.Register("IsPrime", isPrimeHandler(sieve))
	r.Register("Tag", tagHandler)
	r.Register("Blocked", blockedHandler)
	r.Register("Fast", fastHandler)
	r.Register("Set", setHandler)
	r.Register("Get", getHandler)
	r.Register("TSInsert", tsInsertHandler)
	r.Register("TSQuery", tsQueryHandler)
	r.Register("JobPut", jobPutHandler)
	r.Register("JobGet", jobGetHandler)
	r.Register("JobDelete", jobDeleteHandler)
}

// --- Echo: canonical single-echo scenario (spec.md section 8, scenario 1) ---

type pingReq struct {
	Data string `json:"data"`
}
type pongResp struct {
	Data string `json:"data"`
}

func echoHandler(body []byte, _ *Backend) ([]byte, error) {
	var req pingReq
	if err := envelope.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	return envelope.EncodeBody(pongResp{Data: req.Data})
}

// --- IsPrime: adapted from protohackers/1 ---

type isPrimeReq struct {
	Number int `json:"number"`
}
type isPrimeResp struct {
	Prime bool `json:"prime"`
}

func isPrimeHandler(sieve *primesieve.Sieve) router.Handler[*Backend] {
	return func(body []byte, _ *Backend) ([]byte, error) {
		var req isPrimeReq
		if err := envelope.DecodeBody(body, &req); err != nil {
			return nil, err
		}
		prime, err := sieve.IsPrime(req.Number)
		if err != nil {
			return nil, err
		}
		return envelope.EncodeBody(isPrimeResp{Prime: prime})
	}
}

// --- Tag / Blocked / Fast: session affinity and slow-handler isolation
// scenarios (spec.md section 8, scenarios 2 and 3) ---

type tagResp struct {
	WorkerID int `json:"worker_id"`
}

func tagHandler(_ []byte, b *Backend) ([]byte, error) {
	return envelope.EncodeBody(tagResp{WorkerID: b.WorkerID})
}

// blockedHandler waits on b.Gate, letting tests hold a worker busy to
// exercise non-stalling dispatch (spec.md P4). A test unblocks it by
// closing or sending on the Backend's Gate.
func blockedHandler(_ []byte, b *Backend) ([]byte, error) {
	<-b.Gate
	return envelope.EncodeBody(tagResp{WorkerID: b.WorkerID})
}

func fastHandler(_ []byte, b *Backend) ([]byte, error) {
	return envelope.EncodeBody(tagResp{WorkerID: b.WorkerID})
}

// --- Set/Get: adapted from protohackers/4 (unusualdb) ---

type setReq struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
type getReq struct {
	Key string `json:"key"`
}
type getResp struct {
	Value string `json:"value"`
	Found bool   `json:"found"`
}

func setHandler(body []byte, b *Backend) ([]byte, error) {
	var req setReq
	if err := envelope.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	b.KV.Set(req.Key, req.Value)
	return envelope.EncodeBody(struct{}{})
}

func getHandler(body []byte, b *Backend) ([]byte, error) {
	var req getReq
	if err := envelope.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	value, found := b.KV.Get(req.Key)
	return envelope.EncodeBody(getResp{Value: value, Found: found})
}

// --- TSInsert/TSQuery: adapted from protohackers/2 (meanstoanend) ---

type tsInsertReq struct {
	Timestamp int32 `json:"timestamp"`
	Price     int32 `json:"price"`
}
type tsQueryReq struct {
	MinTime int32 `json:"min_time"`
	MaxTime int32 `json:"max_time"`
}
type tsQueryResp struct {
	Mean int32 `json:"mean"`
}

func tsInsertHandler(body []byte, b *Backend) ([]byte, error) {
	var req tsInsertReq
	if err := envelope.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	b.TS.Insert(req.Timestamp, req.Price)
	return envelope.EncodeBody(struct{}{})
}

func tsQueryHandler(body []byte, b *Backend) ([]byte, error) {
	var req tsQueryReq
	if err := envelope.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	return envelope.EncodeBody(tsQueryResp{Mean: b.TS.MeanRange(req.MinTime, req.MaxTime)})
}

// --- JobPut/JobGet/JobDelete: adapted from protohackers/9 (jobcentre) ---

type jobPutReq struct {
	Queue    string          `json:"queue"`
	Priority int             `json:"priority"`
	Body     json.RawMessage `json:"body"`
}
type jobPutResp struct {
	ID int64 `json:"id"`
}
type jobGetReq struct {
	Queues []string `json:"queues"`
}
type jobGetResp struct {
	ID    int64           `json:"id"`
	Queue string          `json:"queue"`
	Body  json.RawMessage `json:"body"`
	Found bool            `json:"found"`
}
type jobDeleteReq struct {
	ID int64 `json:"id"`
}
type jobDeleteResp struct {
	Deleted bool `json:"deleted"`
}

func jobPutHandler(body []byte, b *Backend) ([]byte, error) {
	var req jobPutReq
	if err := envelope.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	id := b.Jobs.Put(req.Queue, req.Priority, req.Body)
	return envelope.EncodeBody(jobPutResp{ID: id})
}

func jobGetHandler(body []byte, b *Backend) ([]byte, error) {
	var req jobGetReq
	if err := envelope.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	job := b.Jobs.Get(req.Queues)
	if job == nil {
		return envelope.EncodeBody(jobGetResp{Found: false})
	}
	return envelope.EncodeBody(jobGetResp{ID: job.ID, Queue: job.Queue, Body: job.Body, Found: true})
}

func jobDeleteHandler(body []byte, b *Backend) ([]byte, error) {
	var req jobDeleteReq
	if err := envelope.DecodeBody(body, &req); err != nil {
		return nil, err
	}
	return envelope.EncodeBody(jobDeleteResp{Deleted: b.Jobs.Delete(req.ID)})
}

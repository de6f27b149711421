// Package dispatcher fans decoded envelopes out to a pool of workers,
// preserving per-session worker affinity without ever blocking the
// reactor behind a slow handler.
package dispatcher

import (
	"log"
	"sync"

	"github.com/snowp/rplay/internal/envelope"
	"github.com/snowp/rplay/internal/queue"
	"github.com/snowp/rplay/internal/router"
	"github.com/snowp/rplay/internal/rpc"
)

// BackendFactory mints one thread-local adapter per worker. Called exactly
// once per worker at worker start; T is not required to be shareable
// across goroutines, since each worker owns exactly one T for its
// lifetime.
type BackendFactory[T any] func() T

// worker is one OS-scheduled goroutine running the handler loop with its
// own private backend.
type worker[T any] struct {
	index   int
	work    *queue.Unbounded[rpc.WorkItem]
	ready   *queue.Unbounded[struct{}]
	backend T
	router  *router.Router[T]
	log     *log.Logger
}

func (w *worker[T]) publishReady() {
	w.ready.In() <- struct{}{}
}

// run is the worker loop: receive work, invoke the handler, deliver the
// response, publish a new ready token. A handler panic is contained here
// so it never takes down the worker or stalls other sessions.
func (w *worker[T]) run() {
	w.publishReady()
	for item := range w.work.Out() {
		resp := w.dispatch(item.Envelope)
		item.Sender.Deliver(resp)
		w.publishReady()
	}
}

func (w *worker[T]) dispatch(e *envelope.Envelope) (resp *envelope.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Printf("handler panic for method %q: %v", e.Method, r)
			resp = &envelope.Envelope{Method: e.Method, Session: e.Session}
		}
	}()
	return w.router.Dispatch(e, w.backend)
}

// Dispatcher assigns incoming (Envelope, Sender) pairs to exactly one
// worker, maintaining session affinity via a privately-owned session
// table. Construct with New, feed it via Events(), and it will spawn and
// run N workers for the lifetime of the process (or until Close).
type Dispatcher[T any] struct {
	workers  []*worker[T]
	incoming *queue.Unbounded[rpc.WorkItem]

	mu          sync.Mutex // guards sessions/nextSession; receive loop is
	sessions    map[uint64]int
	nextSession uint64
	log         *log.Logger
}

// New spawns numWorkers workers, each given its own backend from factory,
// dispatching through r. numWorkers must be >= 1.
func New[T any](numWorkers int, factory BackendFactory[T], r *router.Router[T]) *Dispatcher[T] {
	d := &Dispatcher[T]{
		incoming:    queue.NewUnbounded[rpc.WorkItem](),
		sessions:    make(map[uint64]int),
		nextSession: 1,
		log:         log.New(log.Writer(), "[dispatcher] ", log.Flags()|log.Lmsgprefix),
	}
	for i := 0; i < numWorkers; i++ {
		w := &worker[T]{
			index:   i,
			work:    queue.NewUnbounded[rpc.WorkItem](),
			ready:   queue.NewUnbounded[struct{}](),
			backend: factory(),
			router:  r,
			log:     log.New(log.Writer(), "[worker] ", log.Flags()|log.Lmsgprefix),
		}
		d.workers = append(d.workers, w)
		go w.run()
	}
	go d.receiveLoop()
	return d
}

// Events returns the channel the reactor (or any listener) sends decoded
// WorkItems to.
func (d *Dispatcher[T]) Events() chan<- rpc.WorkItem { return d.incoming.In() }

// Close stops accepting new work. Workers exit once their queues drain
// and are closed in turn.
func (d *Dispatcher[T]) Close() {
	d.incoming.Close()
}

// receiveLoop is the dispatcher's single dedicated goroutine; it is the
// sole owner of the session table, so no lock is required around reads
// of d.sessions/d.nextSession from here (the mutex guards against the
// unlikely case of external inspection, e.g. tests).
func (d *Dispatcher[T]) receiveLoop() {
	for item := range d.incoming.Out() {
		d.route(item)
	}
	for _, w := range d.workers {
		w.work.Close()
	}
}

func (d *Dispatcher[T]) route(item rpc.WorkItem) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sess := item.Envelope.Session
	if sess != 0 {
		idx, ok := d.sessions[sess]
		if !ok {
			// Unknown session (e.g. peer replayed a stale id): treat as a
			// fresh allocation on a worker chosen by the same policy as a
			// new session, so the message is never silently dropped.
			idx = d.pickWorker()
			d.sessions[sess] = idx
		}
		d.workers[idx].work.In() <- item
		return
	}

	// Smallest unused positive id: every id below nextSession is taken, and
	// ids already recorded by the unknown-session path above are skipped.
	for {
		if _, taken := d.sessions[d.nextSession]; !taken {
			break
		}
		d.nextSession++
	}
	newSess := d.nextSession
	d.nextSession++
	idx := d.pickWorker()
	d.sessions[newSess] = idx
	item.Envelope.Session = newSess
	d.workers[idx].work.In() <- item
}

// pickWorker scans workers in index order for one with a ready token
// available (non-blocking poll). If none is ready, it falls through to a
// blocking wait on the first worker so the message is never dropped.
func (d *Dispatcher[T]) pickWorker() int {
	for i, w := range d.workers {
		select {
		case <-w.ready.Out():
			return i
		default:
		}
	}
	<-d.workers[0].ready.Out()
	return 0
}

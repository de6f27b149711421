// Package server wires the reactor, writer, and dispatcher together into
// the single running process spec.md section 3 describes: one reactor
// goroutine, one writer goroutine, and a fixed pool of worker goroutines,
// all connected by unbounded queues so none ever blocks on another.
package server

import (
	"log"

	"github.com/snowp/rplay/internal/backend/primesieve"
	"github.com/snowp/rplay/internal/dispatcher"
	"github.com/snowp/rplay/internal/envelope"
	"github.com/snowp/rplay/internal/handlers"
	"github.com/snowp/rplay/internal/reactor"
	"github.com/snowp/rplay/internal/router"
	"github.com/snowp/rplay/internal/writer"
)

// maxPrime bounds the shared primesieve.Sieve built at startup. A request
// for a larger number is answered with a handler error (spec 4.4(2)),
// not a server-fatal condition.
const maxPrime = 10_000_000

// Config controls the pieces a Server assembles.
type Config struct {
	Addr         string
	NumWorkers   int
	Codec        envelope.Codec
	MaxFrameSize uint32
}

// Server owns the reactor, writer, and dispatcher for one listening
// address. Construct with New, run with Run (blocks until the reactor
// exits), and do not reuse after Run returns.
type Server struct {
	cfg Config
	r   *reactor.Reactor
	w   *writer.Writer
	d   *dispatcher.Dispatcher[*handlers.Backend]
	log *log.Logger
}

// New binds cfg.Addr and assembles the pipeline. The dispatcher's worker
// and receive-loop goroutines start here; the writer and reactor loops do
// not start until Run is called.
func New(cfg Config) (*Server, error) {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.Codec == nil {
		cfg.Codec = envelope.JSONCodec{}
	}

	w := writer.New(cfg.Codec, cfg.MaxFrameSize)

	r, err := reactor.New(cfg.Addr, cfg.MaxFrameSize, cfg.Codec, w.Events())
	if err != nil {
		return nil, err
	}

	rt := router.New[*handlers.Backend]()
	sieve := primesieve.New(maxPrime)
	handlers.Register(rt, sieve)

	d := dispatcher.New(cfg.NumWorkers, handlers.NewBackendFactory(), rt)
	r.AddListener(d.Events())

	return &Server{
		cfg: cfg,
		r:   r,
		w:   w,
		d:   d,
		log: log.New(log.Writer(), "[server] ", log.Flags()|log.Lmsgprefix),
	}, nil
}

// Run starts the writer goroutine and then blocks in the reactor's own
// accept/read loop. It returns only on a fatal reactor error (see
// reactor.Reactor.Run).
func (s *Server) Run() error {
	go s.w.Run()
	s.log.Printf("serving on %s with %d workers", s.cfg.Addr, s.cfg.NumWorkers)
	return s.r.Run()
}

// Close stops the writer and dispatcher. It does not interrupt a blocked
// reactor.Run; callers typically only reach Close after Run has returned
// or from a separate shutdown signal path.
func (s *Server) Close() {
	s.w.Close()
	s.d.Close()
}

//go:build !linux

package reactor

import "github.com/pkg/errors"

// epollPoller has no portable equivalent outside Linux; the reactor's
// edge-triggered readiness model is epoll-specific by design (see
// SPEC_FULL.md 4.6), the same way xtaci/kcptun's server/listen_linux.go
// ships Linux-only raw-socket support alongside a generic fallback.
type epollPoller struct{}

func (r *Reactor) bind() error {
	return errors.New("reactor: epoll-based reactor is only supported on linux")
}

// Run always fails on non-Linux platforms; bind already returned the
// failure, so Run is unreachable via New, but is defined to satisfy the
// same shape as reactor_linux.go's Run.
func (r *Reactor) Run() error {
	return errors.New("reactor: epoll-based reactor is only supported on linux")
}

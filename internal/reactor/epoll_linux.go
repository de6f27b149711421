//go:build linux

package reactor

import "golang.org/x/sys/unix"

// epollPoller wraps a single epoll instance registered in edge-triggered
// mode, mirroring the mio::Poll registration in original_source's Rust
// server (PollOpt::edge()).
type epollPoller struct {
	fd int
}

func newEpoll() (*epollPoller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epollPoller{fd: fd}, nil
}

func (p *epollPoller) add(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET,
		Fd:     int32(fd),
	})
}

func (p *epollPoller) remove(fd int) {
	_ = unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) wait(events []unix.EpollEvent) (int, error) {
	return unix.EpollWait(p.fd, events, -1)
}

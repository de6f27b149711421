//go:build linux

package reactor

import (
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/snowp/rplay/internal/frame"
	"github.com/snowp/rplay/internal/writer"
)

const (
	maxEpollEvents = 1024
	readBufSize    = 64 * 1024
	acceptBacklog  = 1024
)

func (r *Reactor) bind() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", r.addr)
	if err != nil {
		return errors.Wrap(err, "resolve addr")
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return errors.Wrap(err, "socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "setsockopt SO_REUSEADDR")
	}

	var sa unix.SockaddrInet4
	sa.Port = tcpAddr.Port
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	if err := unix.Bind(fd, &sa); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "bind")
	}
	if err := unix.Listen(fd, acceptBacklog); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "listen")
	}

	poller, err := newEpoll()
	if err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "epoll_create1")
	}
	if err := poller.add(fd); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "epoll_ctl add listener")
	}

	r.listenFD = fd
	r.epoll = poller
	r.log.Printf("listening on %s (fd %d)", r.addr, fd)
	return nil
}

// Run is the reactor's blocking loop. It returns only on fatal I/O
// failure (epoll_wait itself failing); AcceptError and ReadError are
// handled inline and never escape this method.
func (r *Reactor) Run() error {
	events := make([]unix.EpollEvent, maxEpollEvents)
	readBuf := make([]byte, readBufSize)
	for {
		n, err := r.epoll.wait(events)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, "reactor: epoll_wait")
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == r.listenFD {
				r.acceptLoop()
				continue
			}
			r.readConn(fd, readBuf)
		}
	}
}

// acceptLoop drains the listening socket until WouldBlock, per spec
// section 4.1's acceptance algorithm.
func (r *Reactor) acceptLoop() {
	for {
		nfd, sa, err := unix.Accept4(r.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			r.log.Printf("accept error: %v", err)
			return
		}

		id := r.nextID()
		peer := sockaddrToAddr(sa)
		r.conns[id] = &connState{fd: nfd, peer: peer, assembler: frame.NewAssembler(r.maxFrameSize)}
		r.fdToID[nfd] = id

		if err := r.epoll.add(nfd); err != nil {
			r.log.Printf("conn %d: epoll_ctl add failed: %v", id, err)
			unix.Close(nfd)
			delete(r.conns, id)
			delete(r.fdToID, nfd)
			continue
		}

		r.writerEvents <- writer.Event{
			Kind:     writer.EventNewConnection,
			ConnID:   id,
			Conn:     rawConn{fd: nfd},
			PeerAddr: peer,
		}
		r.log.Printf("accepted conn %d from %s", id, peer)
	}
}

// readConn drains one connection's socket until WouldBlock, per spec
// section 4.1: edge-triggered means a single wakeup can represent
// multiple frames' worth of bytes.
func (r *Reactor) readConn(fd int, buf []byte) {
	id, ok := r.fdToID[fd]
	if !ok {
		return
	}
	cs := r.conns[id]

	for {
		n, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.ECONNRESET {
				r.terminateConn(id)
				return
			}
			r.log.Printf("conn %d: read error, closing: %v", id, err)
			r.terminateConn(id)
			return
		}
		if n == 0 {
			r.terminateConn(id)
			return
		}

		frames, ferr := cs.assembler.Feed(buf[:n])
		for _, payload := range frames {
			env, derr := r.codec.Decode(payload)
			if derr != nil {
				r.log.Printf("conn %d: decode error, closing: %v", id, derr)
				r.terminateConn(id)
				return
			}
			sender := writer.NewSender(id, r.writerEvents)
			r.deliver(env, sender)
		}
		if ferr != nil {
			r.log.Printf("conn %d: %v", id, ferr)
			r.terminateConn(id)
			return
		}
	}
}

// terminateConn deregisters fd, removes conn state, and tells the writer
// to drop its write half too.
func (r *Reactor) terminateConn(id writer.ConnID) {
	cs, ok := r.conns[id]
	if !ok {
		return
	}
	r.epoll.remove(cs.fd)
	delete(r.fdToID, cs.fd)
	delete(r.conns, id)
	r.writerEvents <- writer.Event{Kind: writer.EventCloseConnection, ConnID: id}
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
	default:
		return &net.TCPAddr{}
	}
}

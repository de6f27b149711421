//go:build linux

package reactor

import "golang.org/x/sys/unix"

// rawConn is the write-side handle for a connection accepted by the
// reactor: a bare, non-blocking file descriptor. The reactor keeps the
// same fd for reading; rawConn is what gets handed to the writer so that
// the two sides never share anything but the integer descriptor, matching
// the "clone the socket handle at accept time" design note (spec.md
// section 9) without the OS-level dup Rust's mio used, since Go lets two
// goroutines call Write and Read on the same fd concurrently without
// coordination.
type rawConn struct {
	fd int
}

func (c rawConn) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Write(c.fd, p[total:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return total, err
		}
		total += n
	}
	return total, nil
}

func (c rawConn) Close() error {
	return unix.Close(c.fd)
}

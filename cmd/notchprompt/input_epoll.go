//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// epollWaitMs bounds each wait so cancellation is noticed promptly.
const epollWaitMs = 250

// readInputEvents reads from all devices with a single epoll instance.
// A device that reports an error or hangup (clicker unplugged) is dropped;
// the reader only fails once no device is left.
func readInputEvents(ctx context.Context, files []*os.File, events chan<- inputEvent, readErr chan<- error, logger *slog.Logger) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		readErr <- fmt.Errorf("epoll_create1: %w", err)
		return
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			readErr <- fmt.Errorf("epoll_ctl_add %s: %w", f.Name(), err)
			return
		}
		fdToFile[fd] = f
	}

	ready := make([]unix.EpollEvent, 16)
	buf := make([]byte, inputEventSize)

	drop := func(fd int, reason error) {
		f := fdToFile[fd]
		_ = unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, fd, nil)
		delete(fdToFile, fd)
		logger.Warn("input device removed", "device", f.Name(), "reason", reason)
	}

	for ctx.Err() == nil {
		if len(fdToFile) == 0 {
			readErr <- errors.New("all input devices are gone")
			return
		}

		n, err := unix.EpollWait(epfd, ready, epollWaitMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			readErr <- fmt.Errorf("epoll_wait: %w", err)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(ready[i].Fd)
			f, ok := fdToFile[fd]
			if !ok {
				continue
			}
			if ready[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				drop(fd, errors.New("device error or hangup"))
				continue
			}
			if _, err := f.Read(buf); err != nil {
				drop(fd, err)
				continue
			}
			ev, err := decodeInputEvent(buf)
			if err != nil {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

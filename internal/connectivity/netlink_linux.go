//go:build linux

package connectivity

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// NetlinkWatcher listens on rtnetlink for link and address changes and
// re-checks interface state on each notification.
type NetlinkWatcher struct {
	logger  zerolog.Logger
	inspect func() (bool, error)
}

func NewNetlinkWatcher(logger zerolog.Logger) *NetlinkWatcher {
	return &NetlinkWatcher{logger: logger, inspect: HasRoutableInterface}
}

func (w *NetlinkWatcher) Watch(ctx context.Context, emit func(online bool)) error {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return fmt.Errorf("failed to open netlink socket: %w", err)
	}

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: unix.RTMGRP_LINK | unix.RTMGRP_IPV4_IFADDR | unix.RTMGRP_IPV6_IFADDR,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to bind netlink socket: %w", err)
	}

	// Non-blocking so the runtime poller owns it and Close interrupts Read.
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to set netlink socket non-blocking: %w", err)
	}
	sock := os.NewFile(uintptr(fd), "netlink-route")
	stop := context.AfterFunc(ctx, func() { sock.Close() })
	defer func() {
		if stop() {
			sock.Close()
		}
	}()

	w.evaluate(emit)

	buf := make([]byte, os.Getpagesize()*4)
	for {
		_, err := sock.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// The kernel drops messages when the socket buffer overflows;
			// the next inspection catches up regardless.
			if errors.Is(err, unix.ENOBUFS) {
				w.logger.Warn().Msg("netlink buffer overrun")
				w.evaluate(emit)
				continue
			}
			return fmt.Errorf("failed to read netlink socket: %w", err)
		}
		w.evaluate(emit)
	}
}

func (w *NetlinkWatcher) evaluate(emit func(bool)) {
	online, err := w.inspect()
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to inspect network interfaces")
		return
	}
	emit(online)
}

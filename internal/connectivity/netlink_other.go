//go:build !linux

package connectivity

import (
	"context"

	"github.com/rs/zerolog"
)

// NetlinkWatcher falls back to a single interface inspection at start on
// platforms without rtnetlink. Later changes must be pushed manually.
type NetlinkWatcher struct {
	logger  zerolog.Logger
	inspect func() (bool, error)
}

func NewNetlinkWatcher(logger zerolog.Logger) *NetlinkWatcher {
	return &NetlinkWatcher{logger: logger, inspect: HasRoutableInterface}
}

func (w *NetlinkWatcher) Watch(ctx context.Context, emit func(online bool)) error {
	w.logger.Warn().Msg("netlink not available on this platform, probing once")
	if online, err := w.inspect(); err == nil {
		emit(online)
	}
	<-ctx.Done()
	return nil
}

package transport

import (
	"os"

	"github.com/linchenxuan/uvbus/log"
	"github.com/linchenxuan/uvbus/loop"
)

// newIPCTransport builds the unix-domain-socket transport. It is the
// stream engine with a socket-file lifecycle: a stale socket left by a
// crashed process is unlinked before listen, and the file is removed on
// Free.
func newIPCTransport(lp *loop.Loop, cb Callbacks) *streamTransport {
	return newStreamTransport("unix", SchemeIPC, lp, cb)
}

// removeStaleSocket unlinks path when it is a unix socket. Regular files
// are left alone so a misconfigured path cannot destroy data.
func removeStaleSocket(path string) {
	fi, err := os.Stat(path)
	if err != nil {
		return
	}
	if fi.Mode()&os.ModeSocket == 0 {
		log.Warn().Str("path", path).Msg("ipc path exists and is not a socket, leaving it")
		return
	}
	if err := os.Remove(path); err != nil {
		log.Warn().Str("path", path).Err(err).Msg("failed to remove stale socket")
	}
}

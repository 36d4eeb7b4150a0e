package transport

import (
	"strings"

	"github.com/linchenxuan/uvbus/codes"
)

// Supported address schemes.
const (
	SchemeTCP    = "tcp"
	SchemeUDP    = "udp"
	SchemeIPC    = "ipc"
	SchemeInproc = "inproc"
)

// Inproc endpoint names are bounded so the registry key stays cheap to
// hash and impossible to abuse as a data channel.
const maxInprocName = 255

// Addr is a parsed transport address of the form scheme://location.
type Addr struct {
	Scheme   string
	Location string
}

// String reassembles the canonical address form.
func (a Addr) String() string {
	return a.Scheme + "://" + a.Location
}

// Parse splits a raw address into scheme and location and validates both.
// tcp/udp locations are host:port, ipc locations are filesystem paths,
// inproc locations are registry names of at most 255 characters.
func Parse(raw string) (Addr, error) {
	idx := strings.Index(raw, "://")
	if idx <= 0 {
		return Addr{}, codes.Errorf(codes.ErrInvalidParam, "malformed address %q: missing scheme separator", raw)
	}
	a := Addr{Scheme: raw[:idx], Location: raw[idx+3:]}
	if a.Location == "" {
		return Addr{}, codes.Errorf(codes.ErrInvalidParam, "malformed address %q: empty location", raw)
	}
	switch a.Scheme {
	case SchemeTCP, SchemeUDP, SchemeIPC:
	case SchemeInproc:
		if len(a.Location) > maxInprocName {
			return Addr{}, codes.Errorf(codes.ErrInvalidParam, "inproc name exceeds %d chars", maxInprocName)
		}
	default:
		return Addr{}, codes.Errorf(codes.ErrInvalidParam, "unsupported scheme %q", a.Scheme)
	}
	return a, nil
}

// parseFor parses raw and additionally requires the given scheme, so a tcp
// transport cannot be pointed at a udp address by mistake.
func parseFor(raw string, scheme string) (Addr, error) {
	a, err := Parse(raw)
	if err != nil {
		return Addr{}, err
	}
	if a.Scheme != scheme {
		return Addr{}, codes.Errorf(codes.ErrInvalidParam, "address scheme %q does not match transport %q", a.Scheme, scheme)
	}
	return a, nil
}

package sources

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrForbiddenDestination is returned when a download would reach a loopback,
// private, link-local or unspecified address.
var ErrForbiddenDestination = errors.New("destination address is not allowed")

// NewHTTPClient returns the client used to download remote sources. Unless
// allowPrivate is set, every connection is checked after name resolution so
// redirects and rebinding hosts cannot reach internal addresses.
func NewHTTPClient(timeout time.Duration, allowPrivate bool) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !allowPrivate {
		dialer.Control = refusePrivate
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	if !allowPrivate {
		// a proxy would hide the real destination from the dial check
		transport.Proxy = nil
	}

	return &http.Client{Timeout: timeout, Transport: transport}
}

func refusePrivate(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrForbiddenDestination, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || !IsPublicIP(ip) {
		return fmt.Errorf("%w: %s", ErrForbiddenDestination, address)
	}
	return nil
}

// IsPublicIP reports whether ip may be contacted when private destinations are refused.
func IsPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsUnspecified())
}

package remote

import (
	"errors"
	"fmt"
	"net"
)

// DNSError reports that the update host could not be resolved, which in
// practice means no connectivity or a misconfigured manifest URL.
type DNSError struct {
	Host string
	Err  error
}

func (e *DNSError) Error() string {
	return fmt.Sprintf("failed to resolve host %s: %v", e.Host, e.Err)
}

func (e *DNSError) Unwrap() error {
	return e.Err
}

// HTTPError reports a reachable server that answered with an error status,
// or any other transport-level failure (status 0 in that case).
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("request failed: %s", e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// classifyTransportErr maps a transport failure onto the recoverable error
// taxonomy: DNS resolution failures become DNSError, everything else is an
// HTTPError with a generic message. These are displayable conditions, not
// crashes; retry is a user action at the caller.
func classifyTransportErr(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &DNSError{Host: dnsErr.Name, Err: err}
	}
	return &HTTPError{Message: err.Error()}
}

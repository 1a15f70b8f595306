package portal

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication means the portal rejected the credentials or the login landed somewhere unexpected.
	ErrAuthentication = errors.New("portal: authentication failed")
	// ErrSessionExpired means a fetch was bounced back to the login page. It matches ErrAuthentication.
	ErrSessionExpired = fmt.Errorf("%w: session expired", ErrAuthentication)
	// ErrTransport covers timeouts, connection errors and non-2xx responses.
	ErrTransport = errors.New("portal: transport failure")
	// ErrMalformedPayload means a CSV or JSON body could not be read at all.
	ErrMalformedPayload = errors.New("portal: malformed payload")
)

// IsFetchFailure reports whether err is one of the fetch-level failures (transport or malformed body).
func IsFetchFailure(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrMalformedPayload)
}

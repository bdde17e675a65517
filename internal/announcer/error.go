package announcer

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"syscall"

	"github.com/cenkalti/drizzle/internal/tracker"
	"github.com/cenkalti/drizzle/internal/tracker/httptracker"
	"github.com/cenkalti/drizzle/internal/tracker/udptracker"
)

// AnnounceError is the last error returned from the tracker with a message that can be shown to the user.
type AnnounceError struct {
	Err     error
	Message string
	// Unknown is true if the error is not one of the expected network or tracker failures.
	Unknown bool
}

func newAnnounceError(err error) *AnnounceError {
	e := &AnnounceError{Err: err}
	var (
		trkErr    *tracker.Error
		dnsErr    *net.DNSError
		statusErr *httptracker.StatusError
		urlErr    *url.Error
	)
	switch {
	case errors.As(err, &trkErr):
		e.Message = "announce error: " + trkErr.FailureReason
	case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
		e.Message = "host not found: " + dnsErr.Name
	case errors.Is(err, syscall.ECONNREFUSED):
		e.Message = "tracker refused the connection"
	case errors.As(err, &urlErr) && urlErr.Timeout(), errors.Is(err, udptracker.ErrTimeout):
		e.Message = "timeout contacting tracker"
	case errors.As(err, &statusErr) && (statusErr.Code == http.StatusForbidden || statusErr.Code == http.StatusNotFound):
		e.Message = "tracker returned http status: " + strconv.Itoa(statusErr.Code)
	case errors.Is(err, tracker.ErrDecode):
		e.Message = "invalid response from tracker"
	default:
		e.Message = "unknown error in announce"
		e.Unknown = true
	}
	return e
}

// ErrorWithType returns the error string prefixed with the type of the error.
func (e *AnnounceError) ErrorWithType() string {
	return reflect.TypeOf(e.Err).String() + ": " + e.Err.Error()
}

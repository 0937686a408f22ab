package signaling

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound matches any NotFoundError via errors.Is.
	ErrNotFound = errors.New("not found")

	// ErrNameTaken matches a RelayError caused by a name collision at
	// offer registration.
	ErrNameTaken = errors.New("name already registered")

	// ErrAlreadyAnswered matches a RelayError for an answer posted to a host
	// that already has one.
	ErrAlreadyAnswered = errors.New("offer already answered")

	// ErrListenerRegistered is returned when a candidate listener for the
	// same remote name is already running on the transport.
	ErrListenerRegistered = errors.New("candidate listener already registered")
)

// Operation names carried in errors.
const (
	opRegisterOffer  = "register offer"
	opSendAnswer     = "send answer"
	opSendCandidate  = "send candidate"
	opGetOffer       = "get offer"
	opPollAnswer     = "poll answer"
	opPollCandidates = "poll candidates"
)

// RelayError reports a relay response with a non-2xx status or success:false.
type RelayError struct {
	Op      string
	Status  int // HTTP status; 200 when the relay answered success:false
	Message string

	// Explicit is set when the body was a relay envelope with success:false.
	// Bare gateway errors and unparsable bodies leave it false; polling
	// retries those.
	Explicit bool
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("%s: relay rejected request (%d): %s", e.Op, e.Status, e.Message)
}

func (e *RelayError) Is(target error) bool {
	if e.Status != http.StatusConflict {
		return false
	}
	switch target {
	case ErrNameTaken:
		return e.Op == opRegisterOffer
	case ErrAlreadyAnswered:
		return e.Op == opSendAnswer
	}
	return false
}

// NotFoundError reports that the offer, answer or peer is not on the relay yet.
type NotFoundError struct {
	Op   string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %q not found on relay", e.Op, e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NetworkError reports a request that could not complete.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// classify maps a rejected relay call to NotFoundError or RelayError. Only
// lookups (GET) report NotFoundError; a rejected POST is always a RelayError.
func classify(op, method, name string, status int, message string, explicit bool) error {
	notFound := status == http.StatusNotFound || strings.Contains(strings.ToLower(message), "not found")
	if notFound && method == http.MethodGet {
		return &NotFoundError{Op: op, Name: name}
	}
	return &RelayError{Op: op, Status: status, Message: message, Explicit: explicit}
}

// transient reports whether a polling loop should swallow err and retry.
// Only an explicit success:false from the relay ends a poll.
func transient(err error) bool {
	var (
		netErr   *NetworkError
		relayErr *RelayError
	)
	switch {
	case errors.Is(err, ErrNotFound), errors.As(err, &netErr):
		return true
	case errors.As(err, &relayErr):
		return !relayErr.Explicit
	}
	return false
}

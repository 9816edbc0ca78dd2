package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindTimeout
	KindSchema
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindSchema:
		return "schema"
	default:
		return "network"
	}
}

// FetchError is returned by Client.Fetch. A timeout is a kind of network
// failure, see IsNetwork.
type FetchError struct {
	Kind ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("dam feed timed out: %v", e.Err)
	case KindSchema:
		return fmt.Sprintf("dam feed returned an unexpected document: %v", e.Err)
	default:
		return fmt.Sprintf("dam feed unavailable: %v", e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) IsNetwork() bool {
	return e.Kind == KindNetwork || e.Kind == KindTimeout
}

// transportError classifies an error from http.Client.Do.
func transportError(err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, Err: err}
	}
	return &FetchError{Kind: KindNetwork, Err: err}
}

package aliyun

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/alibabacloud-go/tea/tea"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
)

// Sentinel errors for the recoverable failure kinds of a poll cycle
var (
	ErrEnumerationFailed = errors.New("enumeration failed")
	ErrFetchFailed       = errors.New("fetch failed")
	ErrMalformedResponse = errors.New("malformed response")
)

// Error kinds used as diagnostic labels
const (
	KindEnumeration = "enumeration"
	KindFetch       = "fetch"
	KindMalformed   = "malformed_response"
	KindUnexpected  = "unexpected"
)

// EnumerationError reports a failed instance or cluster listing for one account
type EnumerationError struct {
	Account string
	Engine  config.Engine
	Err     error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerate %s instances for account %s: %s", e.Engine, e.Account, e.Err)
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}

// Is implements the errors.Is interface
func (e *EnumerationError) Is(target error) bool {
	return target == ErrEnumerationFailed
}

// FetchError reports a failed performance request for one node and key
type FetchError struct {
	NodeID string
	Key    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for node %s: %s", e.Key, e.NodeID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is implements the errors.Is interface
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// MalformedResponseError reports a response that lacks the expected structure
type MalformedResponseError struct {
	Path   string // Location in the response body
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response at %s: %s", e.Path, e.Reason)
}

// Is implements the errors.Is interface
func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

func malformed(path, format string, args ...any) error {
	return &MalformedResponseError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Kind maps an error to its diagnostic kind
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrEnumerationFailed):
		return KindEnumeration
	case errors.Is(err, ErrFetchFailed):
		return KindFetch
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	default:
		return KindUnexpected
	}
}

// Classify describes the underlying cause of a collaborator error:
// server, client, timeout, canceled or unexpected.
func Classify(err error) string {
	var sdkErr *tea.SDKError
	if errors.As(err, &sdkErr) {
		if tea.IntValue(sdkErr.StatusCode) >= 500 {
			return "server"
		}
		return "client"
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	}
	return "unexpected"
}

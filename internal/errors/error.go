package errors

import (
	"io"
	"net"
	"strings"

	"github.com/pkg/errors"
)

var (
	// common errors
	ErrConnectionTimeout = errors.New("connection timeout")

	// mailbox errors
	ErrMailboxNotConnectable = errors.New("mailbox not connectable")
	ErrMailboxNotConnected   = errors.New("mailbox not connected")

	// identity errors
	ErrNoApplicationID       = errors.New("no applicationId")
	ErrApplicationNotServed  = errors.New("application not served by mailbox")
	ErrLenderNotFound        = errors.New("no lender matches sender")
	ErrLenderAmbiguous       = errors.New("multiple lenders match sender")
	ErrSubmissionNotFound    = errors.New("no submission for application and lender")
	ErrInvalidSubmissionData = errors.New("invalid submission update")

	// filter errors
	ErrAutomatedMessage = errors.New("automated message")
)

// IsConnectionError reports whether err means the mailbox connection is gone
// and the session cannot continue on it.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMailboxNotConnected) || errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errorMsg := err.Error()
	return strings.Contains(errorMsg, "connection closed") ||
		strings.Contains(errorMsg, "i/o timeout") ||
		strings.Contains(errorMsg, "EOF") ||
		strings.Contains(errorMsg, "connection reset") ||
		strings.Contains(errorMsg, "broken pipe")
}

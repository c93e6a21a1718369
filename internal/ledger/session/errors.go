package session

import (
	"context"
	"errors"

	"legitify/contracts/ledger"
	dErrors "legitify/pkg/domain-errors"
)

// Transport-neutral failures a Connection reports. Connectors wrap these so
// the manager can classify errors without knowing the transport.
var (
	ErrUnreachable      = errors.New("ledger endpoint unreachable")
	ErrIdentityRejected = errors.New("ledger identity rejected")
	ErrReadConflict     = errors.New("ledger read conflict")
	// ErrCommitUnknown means a submit reached ordering but its commit was not
	// confirmed. The transaction may or may not be on the ledger.
	ErrCommitUnknown = errors.New("ledger transaction outcome unknown")
)

var errSessionClosed = dErrors.New(dErrors.CodeInternal, "ledger session already closed")

// retryable reports whether a failed call may be attempted again.
// Read conflicts are only safe to retry for submits: the retry re-executes the
// chaincode against fresh state, which is how a losing concurrent issuance
// observes the winner and fails with DUPLICATE_RECORD.
//
// A submit whose outcome is unknown is never resubmitted: the first attempt may
// already be committed.
func retryable(submit bool, err error) bool {
	if errors.Is(err, ErrCommitUnknown) {
		return false
	}
	if errors.Is(err, ErrUnreachable) {
		return true
	}
	return submit && errors.Is(err, ErrReadConflict)
}

// gatewayFailure reports whether a connect error says the gateway is down
// rather than that the caller or its identity was wrong.
func gatewayFailure(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, context.DeadlineExceeded)
}

// Translate maps connector errors onto domain errors exactly once.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}

	var ccErr *ledger.Error
	if errors.As(err, &ccErr) {
		switch ccErr.Code {
		case ledger.CodeNotFound:
			return dErrors.Wrap(err, dErrors.CodeNotFound, ccErr.Detail)
		case ledger.CodeDuplicateRecord:
			return dErrors.Wrap(err, dErrors.CodeConflict, ccErr.Detail)
		case ledger.CodeUnauthorized:
			return dErrors.Wrap(err, dErrors.CodeForbidden, ccErr.Detail)
		case ledger.CodeValidation:
			return dErrors.Wrap(err, dErrors.CodeValidation, ccErr.Detail)
		}
	}

	switch {
	case errors.Is(err, ErrCommitUnknown):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger did not confirm the transaction")
	case errors.Is(err, ErrUnreachable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger network unreachable")
	case errors.Is(err, ErrIdentityRejected):
		return dErrors.Wrap(err, dErrors.CodeAuthenticationRejected, "ledger rejected the identity")
	case errors.Is(err, ErrReadConflict):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger contention, retry later")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "ledger call did not complete in time")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger call failed")
	}
}

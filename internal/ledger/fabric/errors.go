package fabric

import (
	"errors"
	"fmt"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-protos-go-apiv2/gateway"
	"github.com/hyperledger/fabric-protos-go-apiv2/peer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"legitify/contracts/ledger"
	"legitify/internal/ledger/session"
)

// classify maps gateway errors onto the transport-neutral session errors.
// Chaincode rejections arrive as gRPC errors whose details carry the peer's
// message, which in turn carries the business code.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var commitErr *client.CommitError
	if errors.As(err, &commitErr) {
		if commitErr.Code == peer.TxValidationCode_MVCC_READ_CONFLICT ||
			commitErr.Code == peer.TxValidationCode_PHANTOM_READ_CONFLICT {
			return fmt.Errorf("%v: %w", err, session.ErrReadConflict)
		}
		return err
	}

	if ccErr, ok := chaincodeError(err); ok {
		return ccErr
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable:
		return fmt.Errorf("%v: %w", err, session.ErrUnreachable)
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%v: %w", err, session.ErrIdentityRejected)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%v: %w", err, session.ErrUnreachable)
	}
	return err
}

// outcomeUnknown marks a failure after the transaction left for the orderer.
func outcomeUnknown(txID string, err error) error {
	return fmt.Errorf("transaction %s: %v: %w", txID, err, session.ErrCommitUnknown)
}

func chaincodeError(err error) (*ledger.Error, bool) {
	if st, ok := status.FromError(err); ok {
		for _, detail := range st.Details() {
			if d, ok := detail.(*gateway.ErrorDetail); ok {
				if ccErr, ok := ledger.DecodeError(d.GetMessage()); ok {
					return ccErr, true
				}
			}
		}
	}
	return ledger.DecodeError(err.Error())
}

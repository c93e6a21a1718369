package fabric

import (
	"errors"
	"testing"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-protos-go-apiv2/gateway"
	"github.com/hyperledger/fabric-protos-go-apiv2/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"legitify/contracts/ledger"
	"legitify/internal/ledger/session"
)

func TestClassify(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, classify(nil))
	})

	t.Run("unavailable peer", func(t *testing.T) {
		err := classify(status.Error(codes.Unavailable, "connection refused"))
		assert.ErrorIs(t, err, session.ErrUnreachable)
	})

	t.Run("rejected identity", func(t *testing.T) {
		assert.ErrorIs(t, classify(status.Error(codes.PermissionDenied, "access denied")), session.ErrIdentityRejected)
		assert.ErrorIs(t, classify(status.Error(codes.Unauthenticated, "bad signature")), session.ErrIdentityRejected)
	})

	t.Run("mvcc conflict on commit", func(t *testing.T) {
		err := classify(&client.CommitError{TransactionID: "tx1", Code: peer.TxValidationCode_MVCC_READ_CONFLICT})
		assert.ErrorIs(t, err, session.ErrReadConflict)
	})

	t.Run("other commit failures pass through", func(t *testing.T) {
		err := classify(&client.CommitError{TransactionID: "tx1", Code: peer.TxValidationCode_ENDORSEMENT_POLICY_FAILURE})
		assert.False(t, errors.Is(err, session.ErrReadConflict))
	})

	t.Run("chaincode rejection in error details", func(t *testing.T) {
		st, err := status.New(codes.Aborted, "failed to endorse transaction").WithDetails(&gateway.ErrorDetail{
			Address: "peer0.university.legitify.local:7051",
			MspId:   "OrgUniversityMSP",
			Message: "chaincode response 500, NOT_FOUND: credential cred-1 does not exist",
		})
		require.NoError(t, err)

		var ccErr *ledger.Error
		require.ErrorAs(t, classify(st.Err()), &ccErr)
		assert.Equal(t, ledger.CodeNotFound, ccErr.Code)
		assert.Equal(t, "credential cred-1 does not exist", ccErr.Detail)
	})

	t.Run("chaincode rejection in message", func(t *testing.T) {
		var ccErr *ledger.Error
		require.ErrorAs(t, classify(errors.New("evaluate failed: UNAUTHORIZED: only the issuer may revoke")), &ccErr)
		assert.Equal(t, ledger.CodeUnauthorized, ccErr.Code)
	})

	t.Run("lost commit status is not retryable", func(t *testing.T) {
		err := outcomeUnknown("tx1", status.Error(codes.DeadlineExceeded, "waiting for commit status"))
		assert.ErrorIs(t, err, session.ErrCommitUnknown)
		assert.NotErrorIs(t, err, session.ErrUnreachable)
		assert.Contains(t, err.Error(), "tx1")
	})

	t.Run("unknown errors pass through", func(t *testing.T) {
		plain := errors.New("something odd")
		assert.Same(t, plain, classify(plain))
	})
}

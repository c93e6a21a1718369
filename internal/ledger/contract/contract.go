// Package contract implements the credential chaincode: the authoritative
// state machine for credential records anchored on the ledger.
//
// Every handler is a pure function of the world state and the transaction
// arguments. Timestamps are read from the transaction header so all endorsers
// compute identical read/write sets.
package contract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	"github.com/hyperledger/fabric-protos-go-apiv2/peer"

	"legitify/contracts/ledger"
)

// Composite key object types for the secondary indexes.
const (
	indexOwner  = "owner~id"
	indexIssuer = "issuer~id"
)

// indexValue is the placeholder value stored under index keys.
var indexValue = []byte{0x00}

// CredentialContract is the chaincode entry point.
type CredentialContract struct {
	logger *slog.Logger
}

// New creates the credential chaincode.
func New(logger *slog.Logger) *CredentialContract {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CredentialContract{logger: logger}
}

// txError is a business rejection carrying a wire error code.
type txError struct {
	code   ledger.ErrorCode
	detail string
}

func (e *txError) Error() string {
	return ledger.FormatError(e.code, e.detail)
}

func reject(code ledger.ErrorCode, format string, args ...any) error {
	return &txError{code: code, detail: fmt.Sprintf(format, args...)}
}

// Init runs on chaincode instantiation and upgrade. No seed data is written.
func (c *CredentialContract) Init(stub shim.ChaincodeStubInterface) *peer.Response {
	return shim.Success(nil)
}

// Invoke dispatches a transaction by name.
func (c *CredentialContract) Invoke(stub shim.ChaincodeStubInterface) (resp *peer.Response) {
	fn, args := stub.GetFunctionAndParameters()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("chaincode panic recovered",
				"function", fn,
				"tx_id", stub.GetTxID(),
				"panic", r,
			)
			resp = shim.Error(fmt.Sprintf("internal error in %s", fn))
		}
	}()

	var (
		payload []byte
		err     error
	)
	switch fn {
	case ledger.TxInitLedger:
		payload, err = nil, nil
	case ledger.TxIssueCredential:
		payload, err = c.issue(stub, args)
	case ledger.TxVerifyCredential:
		payload, err = c.verify(stub, args)
	case ledger.TxRevokeCredential:
		payload, err = c.revoke(stub, args)
	case ledger.TxReadCredential:
		payload, err = c.read(stub, args)
	case ledger.TxListOwnerCredentials:
		payload, err = c.list(stub, indexOwner, args)
	case ledger.TxListIssuerCredentials:
		payload, err = c.list(stub, indexIssuer, args)
	default:
		return shim.Error(fmt.Sprintf("unknown function %q", fn))
	}

	if err != nil {
		c.logger.Info("transaction rejected",
			"function", fn,
			"tx_id", stub.GetTxID(),
			"error", err,
		)
		return shim.Error(err.Error())
	}
	return shim.Success(payload)
}

func (c *CredentialContract) issue(stub shim.ChaincodeStubInterface, args []string) ([]byte, error) {
	req, err := ledger.ParseIssueRequest(args)
	if err != nil {
		return nil, reject(ledger.CodeValidation, "%s", err)
	}

	existing, err := stub.GetState(req.ID)
	if err != nil {
		return nil, fmt.Errorf("read credential %s: %w", req.ID, err)
	}
	if len(existing) > 0 {
		return nil, reject(ledger.CodeDuplicateRecord, "credential %s already exists", req.ID)
	}

	issuedAt, err := txTime(stub)
	if err != nil {
		return nil, err
	}

	record := ledger.Record{
		ID:       req.ID,
		Hash:     req.Hash,
		Issuer:   req.Issuer,
		Owner:    req.Owner,
		Metadata: req.Metadata,
		Status:   ledger.StatusActive,
		IssuedAt: issuedAt,
	}
	if err := putRecord(stub, record); err != nil {
		return nil, err
	}
	if err := putIndex(stub, indexOwner, record.Owner, record.ID); err != nil {
		return nil, err
	}
	if err := putIndex(stub, indexIssuer, record.Issuer, record.ID); err != nil {
		return nil, err
	}
	if err := emit(stub, ledger.EventCredentialIssued, record); err != nil {
		return nil, err
	}
	return nil, nil
}

func (c *CredentialContract) verify(stub shim.ChaincodeStubInterface, args []string) ([]byte, error) {
	req, err := ledger.ParseVerifyRequest(args)
	if err != nil {
		return nil, reject(ledger.CodeValidation, "%s", err)
	}

	record, err := getRecord(stub, req.ID)
	if err != nil {
		return nil, err
	}
	return ledger.FormatBool(record.Active() && record.Hash == req.Hash), nil
}

func (c *CredentialContract) revoke(stub shim.ChaincodeStubInterface, args []string) ([]byte, error) {
	req, err := ledger.ParseRevokeRequest(args)
	if err != nil {
		return nil, reject(ledger.CodeValidation, "%s", err)
	}

	record, err := getRecord(stub, req.ID)
	if err != nil {
		return nil, err
	}
	if record.Issuer != req.Issuer {
		return nil, reject(ledger.CodeUnauthorized, "only the issuer may revoke credential %s", req.ID)
	}
	// Revocation is terminal; a repeat by the issuer leaves the record untouched.
	if !record.Active() {
		return nil, nil
	}

	revokedAt, err := txTime(stub)
	if err != nil {
		return nil, err
	}
	record.Status = ledger.StatusRevoked
	record.RevokedAt = revokedAt
	if err := putRecord(stub, record); err != nil {
		return nil, err
	}
	if err := emit(stub, ledger.EventCredentialRevoked, record); err != nil {
		return nil, err
	}
	return nil, nil
}

func (c *CredentialContract) read(stub shim.ChaincodeStubInterface, args []string) ([]byte, error) {
	if len(args) != 1 {
		return nil, reject(ledger.CodeValidation, "%s expects 1 argument, got %d", ledger.TxReadCredential, len(args))
	}
	if err := ledger.ValidateID(args[0]); err != nil {
		return nil, reject(ledger.CodeValidation, "%s", err)
	}
	record, err := getRecord(stub, args[0])
	if err != nil {
		return nil, err
	}
	return json.Marshal(record)
}

func (c *CredentialContract) list(stub shim.ChaincodeStubInterface, index string, args []string) ([]byte, error) {
	if len(args) != 1 || args[0] == "" {
		return nil, reject(ledger.CodeValidation, "list expects a single non-empty key")
	}

	iter, err := stub.GetStateByPartialCompositeKey(index, []string{args[0]})
	if err != nil {
		return nil, fmt.Errorf("query %s index: %w", index, err)
	}
	defer iter.Close()

	records := make([]ledger.Record, 0)
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate %s index: %w", index, err)
		}
		_, attrs, err := stub.SplitCompositeKey(kv.GetKey())
		if err != nil || len(attrs) != 2 {
			return nil, fmt.Errorf("malformed index key in %s", index)
		}
		record, err := getRecord(stub, attrs[1])
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return json.Marshal(records)
}

func getRecord(stub shim.ChaincodeStubInterface, id string) (ledger.Record, error) {
	raw, err := stub.GetState(id)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("read credential %s: %w", id, err)
	}
	if len(raw) == 0 {
		return ledger.Record{}, reject(ledger.CodeNotFound, "credential %s does not exist", id)
	}
	var record ledger.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return ledger.Record{}, fmt.Errorf("decode credential %s: %w", id, err)
	}
	return record, nil
}

func putRecord(stub shim.ChaincodeStubInterface, record ledger.Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode credential %s: %w", record.ID, err)
	}
	if err := stub.PutState(record.ID, raw); err != nil {
		return fmt.Errorf("write credential %s: %w", record.ID, err)
	}
	return nil
}

func putIndex(stub shim.ChaincodeStubInterface, index, attr, id string) error {
	key, err := stub.CreateCompositeKey(index, []string{attr, id})
	if err != nil {
		return fmt.Errorf("build %s key: %w", index, err)
	}
	return stub.PutState(key, indexValue)
}

func emit(stub shim.ChaincodeStubInterface, name string, record ledger.Record) error {
	payload, err := json.Marshal(struct {
		ID     string        `json:"id"`
		Issuer string        `json:"issuer"`
		Status ledger.Status `json:"status"`
	}{record.ID, record.Issuer, record.Status})
	if err != nil {
		return err
	}
	return stub.SetEvent(name, payload)
}

func txTime(stub shim.ChaincodeStubInterface) (string, error) {
	ts, err := stub.GetTxTimestamp()
	if err != nil {
		return "", fmt.Errorf("read transaction timestamp: %w", err)
	}
	return ts.AsTime().UTC().Format(time.RFC3339Nano), nil
}

package devnet

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	"github.com/hyperledger/fabric-protos-go-apiv2/ledger/queryresult"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	compositeKeyNamespace = "\x00"
	minUnicodeRuneValue   = 0
	maxUnicodeRuneValue   = utf8.MaxRune
)

// simulation is the chaincode stub for one transaction. Reads go to the
// committed state and are recorded with their version; writes are buffered
// until the ledger validates and commits them.
//
// Only the calls the credential chaincode makes are implemented; the embedded
// interface panics on anything else.
type simulation struct {
	shim.ChaincodeStubInterface

	ledger    *Ledger
	txID      string
	channel   string
	fn        string
	args      []string
	timestamp *timestamppb.Timestamp

	reads  map[string]uint64
	writes map[string][]byte // nil value marks a delete
	order  []string
	events []Event
}

func (s *simulation) GetTxID() string      { return s.txID }
func (s *simulation) GetChannelID() string { return s.channel }

func (s *simulation) GetFunctionAndParameters() (string, []string) {
	return s.fn, append([]string(nil), s.args...)
}

func (s *simulation) GetStringArgs() []string {
	return append([]string{s.fn}, s.args...)
}

func (s *simulation) GetArgs() [][]byte {
	out := make([][]byte, 0, len(s.args)+1)
	for _, a := range s.GetStringArgs() {
		out = append(out, []byte(a))
	}
	return out
}

func (s *simulation) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return s.timestamp, nil
}

func (s *simulation) GetState(key string) ([]byte, error) {
	value, version := s.ledger.read(key)
	s.recordRead(key, version)
	return value, nil
}

func (s *simulation) PutState(key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("empty key not allowed")
	}
	if value == nil {
		value = []byte{}
	}
	s.write(key, append([]byte(nil), value...))
	return nil
}

func (s *simulation) DelState(key string) error {
	s.write(key, nil)
	return nil
}

func (s *simulation) SetEvent(name string, payload []byte) error {
	if name == "" {
		return fmt.Errorf("event name can not be empty string")
	}
	// Fabric keeps only the last event set by a transaction.
	s.events = []Event{{Name: name, Payload: append([]byte(nil), payload...), TxID: s.txID}}
	return nil
}

func (s *simulation) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	return createCompositeKey(objectType, attributes)
}

func (s *simulation) SplitCompositeKey(compositeKey string) (string, []string, error) {
	return splitCompositeKey(compositeKey)
}

func (s *simulation) GetStateByPartialCompositeKey(objectType string, keys []string) (shim.StateQueryIteratorInterface, error) {
	prefix, err := createCompositeKey(objectType, keys)
	if err != nil {
		return nil, err
	}
	kvs := s.ledger.scan(prefix, prefix+string(maxUnicodeRuneValue))
	for _, kv := range kvs {
		s.recordRead(kv.key, kv.version)
	}
	return &iterator{channel: s.channel, kvs: kvs}, nil
}

func (s *simulation) recordRead(key string, version uint64) {
	if _, seen := s.reads[key]; !seen {
		s.reads[key] = version
	}
}

func (s *simulation) write(key string, value []byte) {
	if _, seen := s.writes[key]; !seen {
		s.order = append(s.order, key)
	}
	s.writes[key] = value
}

type scanned struct {
	key     string
	value   []byte
	version uint64
}

type iterator struct {
	channel string
	kvs     []scanned
	pos     int
	closed  bool
}

func (it *iterator) HasNext() bool {
	return !it.closed && it.pos < len(it.kvs)
}

func (it *iterator) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, fmt.Errorf("iterator exhausted")
	}
	kv := it.kvs[it.pos]
	it.pos++
	return &queryresult.KV{Namespace: it.channel, Key: kv.key, Value: kv.value}, nil
}

func (it *iterator) Close() error {
	it.closed = true
	return nil
}

func createCompositeKey(objectType string, attributes []string) (string, error) {
	if err := validateCompositeKeyAttribute(objectType); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(compositeKeyNamespace)
	b.WriteString(objectType)
	b.WriteRune(minUnicodeRuneValue)
	for _, attr := range attributes {
		if err := validateCompositeKeyAttribute(attr); err != nil {
			return "", err
		}
		b.WriteString(attr)
		b.WriteRune(minUnicodeRuneValue)
	}
	return b.String(), nil
}

func splitCompositeKey(compositeKey string) (string, []string, error) {
	if !strings.HasPrefix(compositeKey, compositeKeyNamespace) {
		return "", nil, fmt.Errorf("not a composite key: %q", compositeKey)
	}
	parts := strings.Split(strings.TrimSuffix(compositeKey[1:], string(rune(minUnicodeRuneValue))), string(rune(minUnicodeRuneValue)))
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("empty composite key")
	}
	return parts[0], parts[1:], nil
}

func validateCompositeKeyAttribute(str string) error {
	if !utf8.ValidString(str) {
		return fmt.Errorf("not a valid utf8 string: [%x]", str)
	}
	for _, r := range str {
		if r == minUnicodeRuneValue || r == maxUnicodeRuneValue {
			return fmt.Errorf("input contains unicode %#U starting at position [%d]", r, strings.IndexRune(str, r))
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

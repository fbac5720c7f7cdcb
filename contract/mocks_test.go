package contract

import (
	"crypto/x509"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"github.com/hyperledger/fabric-protos-go/peer"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Test doubles: an in-memory ledger stub with composite-key scans, per-key
// history, pagination, and event capture, plus a static client identity.
// Rich queries are disabled unless richQueryEnabled is set, mirroring a
// LevelDB-backed peer.

const testMSPID = "Org1MSP"

const (
	aliceID = "x509::CN=alice,OU=client::CN=ca.org1.example.com"
	bobID   = "x509::CN=bob,OU=client::CN=ca.org1.example.com"
	caraID  = "x509::CN=cara,OU=client::CN=ca.org1.example.com"
	danaID  = "x509::CN=dana,OU=client::CN=ca.org1.example.com"
)

type mockChaincodeEvent struct {
	name    string
	payload []byte
}

type mockStub struct {
	shim.ChaincodeStubInterface

	state            map[string][]byte
	history          map[string][]*queryresult.KeyModification
	events           []mockChaincodeEvent
	txID             string
	txTime           time.Time
	richQueryEnabled bool
}

func newMockStub() *mockStub {
	return &mockStub{
		state:   map[string][]byte{},
		history: map[string][]*queryresult.KeyModification{},
		txID:    "tx-1",
		txTime:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *mockStub) GetTxID() string { return m.txID }

func (m *mockStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(m.txTime), nil
}

func (m *mockStub) GetState(key string) ([]byte, error) {
	value, ok := m.state[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *mockStub) PutState(key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.state[key] = stored
	m.history[key] = append(m.history[key], &queryresult.KeyModification{
		TxId:      m.txID,
		Value:     stored,
		Timestamp: timestamppb.New(m.txTime),
	})
	return nil
}

func (m *mockStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	return compositeKeyForTest(objectType, attributes), nil
}

func compositeKeyForTest(objectType string, attributes []string) string {
	key := string(rune(0)) + objectType + string(rune(0))
	for _, attr := range attributes {
		key += attr + string(rune(0))
	}
	return key
}

func (m *mockStub) sortedKeysWithPrefix(prefix string) []string {
	keys := []string{}
	for k := range m.state {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *mockStub) GetStateByPartialCompositeKey(objectType string, attributes []string) (shim.StateQueryIteratorInterface, error) {
	keys := m.sortedKeysWithPrefix(compositeKeyForTest(objectType, attributes))
	kvs := make([]*queryresult.KV, 0, len(keys))
	for _, k := range keys {
		kvs = append(kvs, &queryresult.KV{Key: k, Value: m.state[k]})
	}
	return &mockStateIterator{kvs: kvs}, nil
}

func (m *mockStub) GetStateByPartialCompositeKeyWithPagination(objectType string, attributes []string, pageSize int32, bookmark string) (shim.StateQueryIteratorInterface, *peer.QueryResponseMetadata, error) {
	keys := m.sortedKeysWithPrefix(compositeKeyForTest(objectType, attributes))
	page, next := paginateKeysForTest(keys, pageSize, bookmark)
	kvs := make([]*queryresult.KV, 0, len(page))
	for _, k := range page {
		kvs = append(kvs, &queryresult.KV{Key: k, Value: m.state[k]})
	}
	return &mockStateIterator{kvs: kvs}, &peer.QueryResponseMetadata{Bookmark: next, FetchedRecordsCount: int32(len(kvs))}, nil
}

// paginateKeysForTest applies the bookmark convention the stub uses: the
// returned bookmark is the first key of the next page, empty when exhausted.
func paginateKeysForTest(keys []string, pageSize int32, bookmark string) ([]string, string) {
	start := 0
	if bookmark != "" {
		for start < len(keys) && keys[start] < bookmark {
			start++
		}
	}
	end := start + int(pageSize)
	if end > len(keys) {
		end = len(keys)
	}
	next := ""
	if end < len(keys) {
		next = keys[end]
	}
	return keys[start:end], next
}

func (m *mockStub) GetQueryResultWithPagination(query string, pageSize int32, bookmark string) (shim.StateQueryIteratorInterface, *peer.QueryResponseMetadata, error) {
	if !m.richQueryEnabled {
		return nil, nil, errors.New("ExecuteQueryWithPagination not supported for leveldb")
	}
	var parsed struct {
		Selector map[string]interface{} `json:"selector"`
	}
	if err := json.Unmarshal([]byte(query), &parsed); err != nil {
		return nil, nil, err
	}

	keys := []string{}
	for k := range m.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Equality-only selector evaluation, enough for the queries the
	// contract issues. Non-JSON values (sequence counters) never match.
	matchedKeys := []string{}
	for _, k := range keys {
		var doc map[string]interface{}
		if err := json.Unmarshal(m.state[k], &doc); err != nil {
			continue
		}
		matches := true
		for field, want := range parsed.Selector {
			if doc[field] != want {
				matches = false
				break
			}
		}
		if matches {
			matchedKeys = append(matchedKeys, k)
		}
	}

	page, next := paginateKeysForTest(matchedKeys, pageSize, bookmark)
	kvs := make([]*queryresult.KV, 0, len(page))
	for _, k := range page {
		kvs = append(kvs, &queryresult.KV{Key: k, Value: m.state[k]})
	}
	return &mockStateIterator{kvs: kvs}, &peer.QueryResponseMetadata{Bookmark: next, FetchedRecordsCount: int32(len(kvs))}, nil
}

func (m *mockStub) GetHistoryForKey(key string) (shim.HistoryQueryIteratorInterface, error) {
	return &mockHistoryIterator{mods: m.history[key]}, nil
}

func (m *mockStub) SetEvent(name string, payload []byte) error {
	m.events = append(m.events, mockChaincodeEvent{name: name, payload: payload})
	return nil
}

func (m *mockStub) lastEvent() *mockChaincodeEvent {
	if len(m.events) == 0 {
		return nil
	}
	return &m.events[len(m.events)-1]
}

type mockStateIterator struct {
	kvs []*queryresult.KV
	idx int
}

func (it *mockStateIterator) HasNext() bool { return it.idx < len(it.kvs) }

func (it *mockStateIterator) Next() (*queryresult.KV, error) {
	kv := it.kvs[it.idx]
	it.idx++
	return kv, nil
}

func (it *mockStateIterator) Close() error { return nil }

type mockHistoryIterator struct {
	mods []*queryresult.KeyModification
	idx  int
}

func (it *mockHistoryIterator) HasNext() bool { return it.idx < len(it.mods) }

func (it *mockHistoryIterator) Next() (*queryresult.KeyModification, error) {
	mod := it.mods[it.idx]
	it.idx++
	return mod, nil
}

func (it *mockHistoryIterator) Close() error { return nil }

type mockClientIdentity struct {
	id    string
	mspID string
}

func (m *mockClientIdentity) GetID() (string, error)    { return m.id, nil }
func (m *mockClientIdentity) GetMSPID() (string, error) { return m.mspID, nil }

func (m *mockClientIdentity) GetAttributeValue(attrName string) (string, bool, error) {
	return "", false, nil
}

func (m *mockClientIdentity) AssertAttributeValue(attrName, attrValue string) error { return nil }

func (m *mockClientIdentity) GetX509Certificate() (*x509.Certificate, error) { return nil, nil }

type mockTransactionContext struct {
	stub     *mockStub
	identity *mockClientIdentity
}

func (c *mockTransactionContext) GetStub() shim.ChaincodeStubInterface { return c.stub }

func (c *mockTransactionContext) GetClientIdentity() cid.ClientIdentity { return c.identity }

// setIdentity switches the transactor for subsequent calls on the same ledger.
func (c *mockTransactionContext) setIdentity(id string) {
	c.identity = &mockClientIdentity{id: id, mspID: c.identity.mspID}
}

func newTestContext(identityID string) (*mockTransactionContext, *mockStub) {
	stub := newMockStub()
	return &mockTransactionContext{
		stub:     stub,
		identity: &mockClientIdentity{id: identityID, mspID: testMSPID},
	}, stub
}

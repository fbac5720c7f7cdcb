package contract

import (
	"credchain/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("credchain.credentialcontract")

// Object types used for composite keys and as 'docType' in CouchDB queries.
const (
	subjectObjectType    = "Subject"
	credentialObjectType = "Credential"
	sequenceObjectType   = "Sequence" // Per-namespace monotonic counters
)

// Sequence namespaces. Each counter advances independently.
const (
	subjectSequenceName    = "subject"
	credentialSequenceName = "credential"
)

// Constants for input validation and limits
const (
	maxStringInputLength = 256
	maxDescriptionLength = 1024
	maxArrayElements     = 50 // Limit for arrays like genesisIssuers, credentialTypes, batch holders
)

// CredchainSmartContract manages subjects and the verifiable credentials
// issued against them.
// @contract:CredchainSmartContract
type CredchainSmartContract struct {
	contractapi.Contract
}

// actorInfo holds commonly needed details about the transaction invoker.
// The associated functions (getCurrentActorInfo, getCurrentTxTimestamp) are
// used by nearly every operation, so they live in the helpers file.
type actorInfo struct {
	fullID string
	alias  string
	mspID  string
}

// Instantiate is called during chaincode instantiation.
// It's a lifecycle method of the contract.
func (s *CredchainSmartContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Info("CredchainSmartContract Instantiated/Upgraded")
}

// --- Issuer Registry Wrappers (Delegating to IssuerManager) ---
// Direct pass-throughs keeping the contract API surface clean.

// IsGenesisIssuer reports whether the given identity is part of the genesis
// issuer set. Pure lookup, no side effects.
func (s *CredchainSmartContract) IsGenesisIssuer(ctx contractapi.TransactionContextInterface, identity string) (bool, error) {
	logger.Debugf("Chaincode Call: IsGenesisIssuer for '%s'", identity)
	return NewIssuerManager(ctx).IsGenesisIssuer(identity)
}

// AmIGenesisIssuer answers the same question for the calling identity.
func (s *CredchainSmartContract) AmIGenesisIssuer(ctx contractapi.TransactionContextInterface) (bool, error) {
	logger.Debugf("Chaincode Call: AmIGenesisIssuer by '%s'", MustGetCallerFullID(ctx))
	return NewIssuerManager(ctx).IsCurrentUserGenesisIssuer()
}

// GetGenesisIssuers returns the full IDs of the genesis issuer set, sorted.
// This is a public function that doesn't require any privileges.
func (s *CredchainSmartContract) GetGenesisIssuers(ctx contractapi.TransactionContextInterface) ([]string, error) {
	logger.Debug("Chaincode Call: GetGenesisIssuers (public access)")
	return NewIssuerManager(ctx).GetGenesisIssuers()
}

// GetLedgerConfig returns the committed genesis configuration.
func (s *CredchainSmartContract) GetLedgerConfig(ctx contractapi.TransactionContextInterface) (*model.LedgerConfig, error) {
	logger.Debug("Chaincode Call: GetLedgerConfig")
	return NewIssuerManager(ctx).GetLedgerConfig()
}

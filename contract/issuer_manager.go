package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"credchain/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var issuerLogger = flogging.MustGetLogger("credchain.issuermanager")

// Object types for composite keys, also usable as 'docType' or 'objectType' in CouchDB.
const (
	genesisIssuerObjectType = "GenesisIssuer" // Stores GenesisIssuerInfo objects. Attribute for composite key: FullID.
	ledgerConfigObjectType  = "LedgerConfig"  // Stores the singleton LedgerConfig. Attribute for composite key: "config".
)

// ledgerConfigKeyAttribute is the single attribute under ledgerConfigObjectType.
const ledgerConfigKeyAttribute = "config"

// DefaultCredentialTypes defines the credential types issuable when the
// genesis configuration does not override the set.
var DefaultCredentialTypes = map[string]bool{
	"Attended":    true,
	"Conducted":   true,
	"Volunteered": true,
}

// IssuerManager handles the genesis issuer set, the ledger configuration,
// and caller identity extraction.
type IssuerManager struct {
	Ctx contractapi.TransactionContextInterface
}

// NewIssuerManager creates a new instance of IssuerManager.
func NewIssuerManager(ctx contractapi.TransactionContextInterface) *IssuerManager {
	return &IssuerManager{Ctx: ctx}
}

// --- Internal Helper Functions ---

func isValidX509ID(id string) bool {
	// Basic check, can be enhanced if specific X.509 formats are enforced.
	return strings.HasPrefix(id, "x509::") || strings.HasPrefix(id, "eDUwOTo6") // "eDUwOTo6" is "x509::" base64 encoded
}

// --- Key Creation Helpers (using Composite Keys) ---

func (im *IssuerManager) createGenesisIssuerCompositeKey(fullID string) (string, error) {
	return im.Ctx.GetStub().CreateCompositeKey(genesisIssuerObjectType, []string{fullID})
}

func (im *IssuerManager) createLedgerConfigCompositeKey() (string, error) {
	return im.Ctx.GetStub().CreateCompositeKey(ledgerConfigObjectType, []string{ledgerConfigKeyAttribute})
}

// --- Genesis & Configuration Functions ---

// IsBootstrapped checks whether the genesis configuration has been committed.
// The LedgerConfig record is the authoritative bootstrap marker.
func (im *IssuerManager) IsBootstrapped() (bool, error) {
	configKey, err := im.createLedgerConfigCompositeKey()
	if err != nil {
		return false, fmt.Errorf("failed to create ledger config key for IsBootstrapped: %w", err)
	}
	configBytes, err := im.Ctx.GetStub().GetState(configKey)
	if err != nil {
		return false, fmt.Errorf("ledger error checking bootstrap state: %w", err)
	}
	return configBytes != nil, nil
}

// GetLedgerConfig loads the committed genesis configuration.
func (im *IssuerManager) GetLedgerConfig() (*model.LedgerConfig, error) {
	configKey, err := im.createLedgerConfigCompositeKey()
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger config key: %w", err)
	}
	configBytes, err := im.Ctx.GetStub().GetState(configKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error reading ledger config: %w", err)
	}
	if configBytes == nil {
		return nil, model.NewError(model.CodeNotBootstrapped, "ledger has not been bootstrapped: no genesis configuration exists")
	}
	var config model.LedgerConfig
	if err := json.Unmarshal(configBytes, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger config: %w", err)
	}
	if config.CredentialTypes == nil {
		config.CredentialTypes = []string{}
	}
	return &config, nil
}

// IsGenesisIssuer reports whether fullID is a member of the genesis issuer
// set. An unknown identity is not an error; it is simply not a genesis issuer.
func (im *IssuerManager) IsGenesisIssuer(fullID string) (bool, error) {
	if strings.TrimSpace(fullID) == "" {
		return false, errors.New("identity cannot be empty for IsGenesisIssuer check")
	}
	issuerKey, err := im.createGenesisIssuerCompositeKey(fullID)
	if err != nil {
		return false, fmt.Errorf("failed to create genesis issuer key for '%s': %w", fullID, err)
	}
	issuerBytes, err := im.Ctx.GetStub().GetState(issuerKey)
	if err != nil {
		return false, fmt.Errorf("ledger error checking genesis issuer '%s': %w", fullID, err)
	}
	return issuerBytes != nil, nil
}

// IsCurrentUserGenesisIssuer checks the transaction invoker against the
// genesis issuer set.
func (im *IssuerManager) IsCurrentUserGenesisIssuer() (bool, error) {
	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return false, fmt.Errorf("failed to get current user's FullID for genesis issuer check: %w", err)
	}
	return im.IsGenesisIssuer(callerFullID)
}

// RequireGenesisIssuer returns an UNAUTHORIZED error unless the caller is a
// member of the genesis issuer set.
func (im *IssuerManager) RequireGenesisIssuer() error {
	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return fmt.Errorf("failed to get caller identity for genesis issuer check: %w", err)
	}
	isGenesis, err := im.IsGenesisIssuer(callerFullID)
	if err != nil {
		return fmt.Errorf("failed to verify genesis issuer status for '%s': %w", callerFullID, err)
	}
	if !isGenesis {
		return model.NewError(model.CodeUnauthorized, fmt.Sprintf("identity '%s' is not a genesis issuer", callerFullID))
	}
	return nil
}

// GetGenesisIssuers returns the full IDs of the genesis issuer set. The
// composite key iterator returns keys in lexical order, so the listing is
// deterministic.
func (im *IssuerManager) GetGenesisIssuers() ([]string, error) {
	iterator, err := im.Ctx.GetStub().GetStateByPartialCompositeKey(genesisIssuerObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to query genesis issuer records: %w", err)
	}
	defer iterator.Close()

	issuers := []string{}
	for iterator.HasNext() {
		queryResponse, iterErr := iterator.Next()
		if iterErr != nil {
			issuerLogger.Warningf("GetGenesisIssuers: Failed to get next issuer record: %v. Skipping.", iterErr)
			continue
		}
		var issuerInfo model.GenesisIssuerInfo
		if err := json.Unmarshal(queryResponse.Value, &issuerInfo); err != nil {
			issuerLogger.Warningf("GetGenesisIssuers: Failed to unmarshal issuer record for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		issuers = append(issuers, issuerInfo.FullID)
	}
	return issuers, nil // Will be [] if empty, not null
}

// --- Caller Identity Functions ---

// GetCurrentIdentityFullID retrieves the full X.509 ID of the current transactor.
func (im *IssuerManager) GetCurrentIdentityFullID() (string, error) {
	clientIdentity := im.Ctx.GetClientIdentity()
	if clientIdentity == nil {
		return "", errors.New("client identity is nil from context")
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client identity ID from context: %w", err)
	}
	if id == "" { // GetID can sometimes return empty string without error if not properly set up
		return "", errors.New("client identity ID from context is empty")
	}
	if !isValidX509ID(id) {
		issuerLogger.Warningf("Current client ID '%s' does not appear to be a standard X.509 format.", id)
	}
	return id, nil
}

// MustGetCallerFullID is a utility to get the caller's ID, returning a placeholder on error.
// Useful for logging when a full error return isn't desired.
func MustGetCallerFullID(ctx contractapi.TransactionContextInterface) string {
	clientIdentity := ctx.GetClientIdentity()
	if clientIdentity == nil {
		issuerLogger.Error("MustGetCallerFullID: Client identity is nil from context. Returning placeholder.")
		return "ERROR_NIL_CLIENT_IDENTITY"
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		issuerLogger.Errorf("MustGetCallerFullID: Failed to get client identity ID: %v. Returning placeholder.", err)
		return "ERROR_GETTING_CALLER_ID"
	}
	if id == "" {
		issuerLogger.Error("MustGetCallerFullID: Client identity ID from context is empty. Returning placeholder.")
		return "ERROR_EMPTY_CALLER_ID"
	}
	return id
}

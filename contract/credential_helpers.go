package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"credchain/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Core Helper Methods (used across multiple operations) ---

// getCurrentTxTimestamp retrieves the current transaction timestamp from the stub.
func (s *CredchainSmartContract) getCurrentTxTimestamp(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

// getCurrentActorInfo resolves the transaction invoker's full ID, a
// log-friendly alias, and MSP ID. The alias is only ever used in log lines;
// authorization and stored records always use the full ID.
func (s *CredchainSmartContract) getCurrentActorInfo(ctx contractapi.TransactionContextInterface) (*actorInfo, error) {
	im := NewIssuerManager(ctx)
	fullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return nil, fmt.Errorf("failed to get current actor's FullID: %w", err)
	}

	// Extract a readable alias from the X.509 CN when present.
	var alias string
	if strings.Contains(fullID, "::CN=") {
		parts := strings.Split(fullID, "::CN=")
		if len(parts) > 1 {
			cnPart := parts[1]
			// Remove any additional suffixes
			if idx := strings.Index(cnPart, "::"); idx != -1 {
				cnPart = cnPart[:idx]
			}
			alias = cnPart
		}
	}
	if alias == "" {
		// Truncate fullID for alias placeholder to avoid overly long alias
		maxAliasLen := 16
		if len(fullID) > maxAliasLen {
			alias = "unknown_" + fullID[:maxAliasLen]
		} else {
			alias = "unknown_" + fullID
		}
	}

	mspID, err := ctx.GetClientIdentity().GetMSPID()
	if err != nil {
		return nil, fmt.Errorf("failed to get current actor's MSPID: %w", err)
	}
	return &actorInfo{fullID: fullID, alias: alias, mspID: mspID}, nil
}

// createSubjectCompositeKey creates a composite key for a subject.
func (s *CredchainSmartContract) createSubjectCompositeKey(ctx contractapi.TransactionContextInterface, subjectID string) (string, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", errors.New("subjectID cannot be empty")
	}
	return ctx.GetStub().CreateCompositeKey(subjectObjectType, []string{subjectID})
}

// createCredentialCompositeKey creates a composite key for a credential.
func (s *CredchainSmartContract) createCredentialCompositeKey(ctx contractapi.TransactionContextInterface, credentialID string) (string, error) {
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" {
		return "", errors.New("credentialID cannot be empty")
	}
	return ctx.GetStub().CreateCompositeKey(credentialObjectType, []string{credentialID})
}

// nextSequence allocates the next ID from the named monotonic counter and
// persists the advanced value in the same transaction. IDs are decimal
// strings starting at "1" and are never reused: the counter only moves
// forward, and an aborted transaction discards the advance along with every
// other write. Callers must only allocate after all authorization and
// validation checks have passed, so a failed operation never consumes an ID.
func (s *CredchainSmartContract) nextSequence(ctx contractapi.TransactionContextInterface, name string) (string, error) {
	seqKey, err := ctx.GetStub().CreateCompositeKey(sequenceObjectType, []string{name})
	if err != nil {
		return "", fmt.Errorf("failed to create sequence key for '%s': %w", name, err)
	}
	seqBytes, err := ctx.GetStub().GetState(seqKey)
	if err != nil {
		return "", fmt.Errorf("failed to read sequence '%s': %w", name, err)
	}
	var current uint64
	if seqBytes != nil {
		current, err = strconv.ParseUint(string(seqBytes), 10, 64)
		if err != nil {
			return "", fmt.Errorf("sequence '%s' holds malformed value '%s': %w", name, string(seqBytes), err)
		}
	}
	next := current + 1
	nextStr := strconv.FormatUint(next, 10)
	if err := ctx.GetStub().PutState(seqKey, []byte(nextStr)); err != nil {
		return "", fmt.Errorf("failed to advance sequence '%s': %w", name, err)
	}
	return nextStr, nil
}

// --- Validation Helper Functions ---

func (s *CredchainSmartContract) validateRequiredString(input, field string, max int) error {
	if strings.TrimSpace(input) == "" {
		return model.NewError(model.CodeInvalidInput, fmt.Sprintf("%s cannot be empty", field))
	}
	if len(input) > max {
		return model.NewError(model.CodeInvalidInput, fmt.Sprintf("%s exceeds max length %d", field, max))
	}
	return nil
}

func (s *CredchainSmartContract) validateOptionalString(input, field string, max int) error {
	if input != "" && len(input) > max {
		return model.NewError(model.CodeInvalidInput, fmt.Sprintf("%s exceeds max length %d", field, max))
	}
	return nil
}

func (s *CredchainSmartContract) validateStringArray(arr []string, field string, maxItems, maxItemLen int) error {
	if arr == nil { // nil array is valid (empty)
		return nil
	}
	if len(arr) > maxItems {
		return model.NewError(model.CodeInvalidInput, fmt.Sprintf("%s has %d items, exceeding maximum of %d", field, len(arr), maxItems))
	}
	for i, v := range arr {
		if err := s.validateOptionalString(v, fmt.Sprintf("%s[%d]", field, i), maxItemLen); err != nil {
			return err
		}
	}
	return nil
}

func parseSubjectCreationPolicy(str string) (model.SubjectCreationPolicy, error) {
	switch strings.ToUpper(strings.TrimSpace(str)) {
	case "", string(model.SubjectCreationOpenToAll):
		return model.SubjectCreationOpenToAll, nil // Default when unset
	case string(model.SubjectCreationGenesisIssuersOnly):
		return model.SubjectCreationGenesisIssuersOnly, nil
	default:
		return "", model.NewError(model.CodeInvalidInput, fmt.Sprintf("invalid subjectCreationPolicy '%s'. Valid policies: %s, %s", str, model.SubjectCreationOpenToAll, model.SubjectCreationGenesisIssuersOnly))
	}
}

func parseRevocationPolicy(str string) (model.RevocationPolicy, error) {
	switch strings.ToUpper(strings.TrimSpace(str)) {
	case "", string(model.RevocationIssuerOnly):
		return model.RevocationIssuerOnly, nil // Default when unset
	case string(model.RevocationGenesisOverride):
		return model.RevocationGenesisOverride, nil
	default:
		return "", model.NewError(model.CodeInvalidInput, fmt.Sprintf("invalid revocationPolicy '%s'. Valid policies: %s, %s", str, model.RevocationIssuerOnly, model.RevocationGenesisOverride))
	}
}

// defaultCredentialTypesList returns the default type set as a sorted slice,
// so the committed configuration is identical on every endorsing peer.
func defaultCredentialTypesList() []string {
	types := make([]string, 0, len(DefaultCredentialTypes))
	for t := range DefaultCredentialTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Specific data args validators

// ValidatedBootstrapConfig carries the parsed and defaulted genesis configuration.
type ValidatedBootstrapConfig struct {
	GenesisIssuers        []string
	SubjectCreationPolicy model.SubjectCreationPolicy
	RevocationPolicy      model.RevocationPolicy
	CredentialTypes       []string
}

func (s *CredchainSmartContract) validateBootstrapConfigArgs(configJSON string) (*ValidatedBootstrapConfig, error) {
	if strings.TrimSpace(configJSON) == "" {
		return nil, model.NewError(model.CodeInvalidInput, "configJSON cannot be empty")
	}
	var cfgArg struct {
		GenesisIssuers        []string `json:"genesisIssuers"`
		SubjectCreationPolicy string   `json:"subjectCreationPolicy"`
		RevocationPolicy      string   `json:"revocationPolicy"`
		CredentialTypes       []string `json:"credentialTypes"`
	}
	if err := json.Unmarshal([]byte(configJSON), &cfgArg); err != nil {
		return nil, model.WrapError(err, model.CodeInvalidInput, fmt.Sprintf("invalid JSON for configJSON: %v", err))
	}

	if len(cfgArg.GenesisIssuers) == 0 {
		return nil, model.NewError(model.CodeInvalidInput, "genesisIssuers cannot be empty")
	}
	if err := s.validateStringArray(cfgArg.GenesisIssuers, "genesisIssuers", maxArrayElements, maxStringInputLength); err != nil {
		return nil, err
	}
	seenIssuers := make(map[string]bool)
	for i, issuer := range cfgArg.GenesisIssuers {
		if err := s.validateRequiredString(issuer, fmt.Sprintf("genesisIssuers[%d]", i), maxStringInputLength); err != nil {
			return nil, err
		}
		if seenIssuers[issuer] {
			return nil, model.NewError(model.CodeInvalidInput, fmt.Sprintf("genesisIssuers contains duplicate identity '%s'", issuer))
		}
		seenIssuers[issuer] = true
	}

	subjectPolicy, err := parseSubjectCreationPolicy(cfgArg.SubjectCreationPolicy)
	if err != nil {
		return nil, err
	}
	revocationPolicy, err := parseRevocationPolicy(cfgArg.RevocationPolicy)
	if err != nil {
		return nil, err
	}

	credentialTypes := cfgArg.CredentialTypes
	if len(credentialTypes) == 0 {
		credentialTypes = defaultCredentialTypesList()
	} else {
		if err := s.validateStringArray(credentialTypes, "credentialTypes", maxArrayElements, maxStringInputLength); err != nil {
			return nil, err
		}
		seenTypes := make(map[string]bool)
		for i, credType := range credentialTypes {
			if err := s.validateRequiredString(credType, fmt.Sprintf("credentialTypes[%d]", i), maxStringInputLength); err != nil {
				return nil, err
			}
			if seenTypes[credType] {
				return nil, model.NewError(model.CodeInvalidInput, fmt.Sprintf("credentialTypes contains duplicate type '%s'", credType))
			}
			seenTypes[credType] = true
		}
	}

	return &ValidatedBootstrapConfig{
		GenesisIssuers:        cfgArg.GenesisIssuers,
		SubjectCreationPolicy: subjectPolicy,
		RevocationPolicy:      revocationPolicy,
		CredentialTypes:       credentialTypes,
	}, nil
}

// ValidatedSubjectData carries the optional descriptive fields for a new subject.
type ValidatedSubjectData struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *CredchainSmartContract) validateSubjectDataArgs(subjectDataJSON string) (*ValidatedSubjectData, error) {
	sdArg := &ValidatedSubjectData{}
	if strings.TrimSpace(subjectDataJSON) == "" {
		return sdArg, nil // Descriptive fields are optional
	}
	if err := json.Unmarshal([]byte(subjectDataJSON), sdArg); err != nil {
		return nil, model.WrapError(err, model.CodeInvalidInput, fmt.Sprintf("invalid JSON for subjectDataJSON: %v", err))
	}
	if err := s.validateOptionalString(sdArg.Name, "subjectData.name", maxStringInputLength); err != nil {
		return nil, err
	}
	if err := s.validateOptionalString(sdArg.Description, "subjectData.description", maxDescriptionLength); err != nil {
		return nil, err
	}
	return sdArg, nil
}

func (s *CredchainSmartContract) validateHoldersArgs(holdersJSON string) ([]string, error) {
	if strings.TrimSpace(holdersJSON) == "" {
		return nil, model.NewError(model.CodeInvalidInput, "holdersJSON cannot be empty")
	}
	var holders []string
	if err := json.Unmarshal([]byte(holdersJSON), &holders); err != nil {
		return nil, model.WrapError(err, model.CodeInvalidInput, fmt.Sprintf("invalid JSON for holdersJSON (expected array of identity strings): %v", err))
	}
	if len(holders) == 0 {
		return nil, model.NewError(model.CodeInvalidInput, "holdersJSON cannot be an empty array")
	}
	if err := s.validateStringArray(holders, "holders", maxArrayElements, maxStringInputLength); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for i, holder := range holders {
		if err := s.validateRequiredString(holder, fmt.Sprintf("holders[%d]", i), maxStringInputLength); err != nil {
			return nil, err
		}
		if seen[holder] {
			return nil, model.NewError(model.CodeInvalidInput, fmt.Sprintf("holders contains duplicate identity '%s'", holder))
		}
		seen[holder] = true
	}
	return holders, nil
}

// validateCredentialType checks a requested type against the configured
// closed set.
func (s *CredchainSmartContract) validateCredentialType(config *model.LedgerConfig, credentialType string) error {
	if err := s.validateRequiredString(credentialType, "credentialType", maxStringInputLength); err != nil {
		return err
	}
	for _, allowed := range config.CredentialTypes {
		if credentialType == allowed {
			return nil
		}
	}
	return model.NewError(model.CodeInvalidInput, fmt.Sprintf("credentialType '%s' is not in the configured set: %s", credentialType, strings.Join(config.CredentialTypes, ", ")))
}

// emitCredentialEvent sends a chaincode event. Emission failures are logged
// and never fail the transaction; a transaction that aborts for any other
// reason delivers no event at all.
func (s *CredchainSmartContract) emitCredentialEvent(ctx contractapi.TransactionContextInterface, eventName, entityID string, payload map[string]interface{}) {
	if payload == nil {
		logger.Errorf("emitCredentialEvent: cannot emit event '%s' for '%s', payload is nil", eventName, entityID)
		return
	}
	for k, v := range payload {
		if t, ok := v.(time.Time); ok {
			payload[k] = t.Format(time.RFC3339)
		}
	}
	eventBytes, err := json.Marshal(payload)
	if err != nil {
		logger.Warningf("emitCredentialEvent: Failed to marshal event payload for event '%s' on '%s': %v", eventName, entityID, err)
		return
	}
	if errSet := ctx.GetStub().SetEvent(eventName, eventBytes); errSet != nil {
		logger.Warningf("emitCredentialEvent: Failed to set event '%s' for '%s': %v", eventName, entityID, errSet)
	}
}

package contract

import (
	"encoding/json"
	"fmt"

	"credchain/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// BootstrapLedger initializes the ledger for first use: it records the
// genesis issuer set and commits the ledger configuration. It is strictly
// one-time; every later call fails with ALREADY_INITIALIZED and leaves the
// ledger untouched. Deployment tooling may invoke it with any identity.
func (s *CredchainSmartContract) BootstrapLedger(ctx contractapi.TransactionContextInterface, configJSON string) error {
	logger.Info("BootstrapLedger: Attempting to bootstrap ledger")
	im := NewIssuerManager(ctx)

	bootstrapped, err := im.IsBootstrapped()
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to check bootstrap status: %w", err)
	}
	if bootstrapped {
		logger.Warning("BootstrapLedger: Attempt to re-run bootstrap on an already bootstrapped ledger.")
		return model.NewError(model.CodeAlreadyInitialized, "ledger is already bootstrapped. BootstrapLedger should not be re-run.")
	}

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to get caller identity: %w", err)
	}
	logger.Infof("BootstrapLedger: Invoked by '%s' (MSP: %s)", actor.alias, actor.mspID)

	config, err := s.validateBootstrapConfigArgs(configJSON)
	if err != nil {
		return fmt.Errorf("BootstrapLedger: invalid config: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("BootstrapLedger: %w", err)
	}

	logger.Infof("BootstrapLedger: Step 1: Recording %d genesis issuer(s)", len(config.GenesisIssuers))
	for i, issuerID := range config.GenesisIssuers {
		if !isValidX509ID(issuerID) {
			logger.Warningf("BootstrapLedger: genesisIssuers[%d] '%s' does not appear to be a standard X.509 DN or base64 encoded ID. Proceeding.", i, issuerID)
		}
		issuerKey, keyErr := im.createGenesisIssuerCompositeKey(issuerID)
		if keyErr != nil {
			return fmt.Errorf("BootstrapLedger: failed to create key for genesis issuer '%s': %w", issuerID, keyErr)
		}
		issuerInfo := model.GenesisIssuerInfo{
			ObjectType: genesisIssuerObjectType,
			FullID:     issuerID,
			AddedBy:    actor.fullID,
			AddedAt:    now,
		}
		issuerBytes, marshalErr := json.Marshal(issuerInfo)
		if marshalErr != nil {
			return fmt.Errorf("BootstrapLedger: failed to marshal genesis issuer '%s': %w", issuerID, marshalErr)
		}
		if putErr := ctx.GetStub().PutState(issuerKey, issuerBytes); putErr != nil {
			return fmt.Errorf("BootstrapLedger: failed to record genesis issuer '%s': %w", issuerID, putErr)
		}
		logger.Infof("BootstrapLedger: Recorded genesis issuer '%s'", issuerID)
	}

	logger.Info("BootstrapLedger: Step 2: Committing ledger configuration")
	ledgerConfig := model.LedgerConfig{
		ObjectType:            ledgerConfigObjectType,
		SubjectCreationPolicy: config.SubjectCreationPolicy,
		RevocationPolicy:      config.RevocationPolicy,
		CredentialTypes:       config.CredentialTypes,
		BootstrappedAt:        now,
		BootstrappedBy:        actor.fullID,
	}
	configKey, err := im.createLedgerConfigCompositeKey()
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to create ledger config key: %w", err)
	}
	configBytes, err := json.Marshal(ledgerConfig)
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to marshal ledger config: %w", err)
	}
	if err := ctx.GetStub().PutState(configKey, configBytes); err != nil {
		return fmt.Errorf("BootstrapLedger: failed to commit ledger config: %w", err)
	}

	logger.Infof("BootstrapLedger: Ledger bootstrap completed successfully. Issuers: %d, subjectCreationPolicy: %s, revocationPolicy: %s, credentialTypes: %v",
		len(config.GenesisIssuers), config.SubjectCreationPolicy, config.RevocationPolicy, config.CredentialTypes)
	return nil
}

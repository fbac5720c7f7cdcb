package contract

import (
	"encoding/json"
	"fmt"

	"credchain/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Revocation Operations ---

// RevokeCredential marks a credential as revoked. Revocation is permanent;
// there is no un-revoke. Revoking an already revoked credential fails with
// ALREADY_REVOKED. Under the default ISSUER_ONLY policy only the identity
// that issued the credential may revoke it; under GENESIS_OVERRIDE any
// genesis issuer may revoke as well.
func (s *CredchainSmartContract) RevokeCredential(ctx contractapi.TransactionContextInterface, credentialID string) error {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("RevokeCredential: failed to get actor info: %w", err)
	}
	im := NewIssuerManager(ctx)
	config, err := im.GetLedgerConfig()
	if err != nil {
		return fmt.Errorf("RevokeCredential: %w", err)
	}

	logger.Infof("RevokeCredential: Actor '%s' (alias: '%s') revoking credential '%s'", actor.fullID, actor.alias, credentialID)

	if err := s.validateRequiredString(credentialID, "credentialID", maxStringInputLength); err != nil {
		return err
	}

	credential, err := s.getCredentialByID(ctx, credentialID)
	if err != nil {
		return err
	}
	if credential.Revoked {
		return model.NewError(model.CodeAlreadyRevoked, fmt.Sprintf("credential '%s' is already revoked", credentialID))
	}

	authorized := actor.fullID == credential.IssuedBy
	if !authorized && config.RevocationPolicy == model.RevocationGenesisOverride {
		isGenesis, genErr := im.IsGenesisIssuer(actor.fullID)
		if genErr != nil {
			return fmt.Errorf("RevokeCredential: failed to check genesis issuer status for '%s': %w", actor.fullID, genErr)
		}
		authorized = isGenesis
	}
	if !authorized {
		return model.NewError(model.CodeUnauthorized, fmt.Sprintf("identity '%s' did not issue credential '%s' and may not revoke it", actor.fullID, credentialID))
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RevokeCredential: failed to get transaction timestamp: %w", err)
	}

	credential.Revoked = true
	credential.RevokedAt = &now
	credential.RevokedBy = actor.fullID

	credentialKey, err := s.createCredentialCompositeKey(ctx, credentialID)
	if err != nil {
		return fmt.Errorf("RevokeCredential: failed to create composite key for credential '%s': %w", credentialID, err)
	}
	credentialBytes, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("RevokeCredential: failed to marshal credential '%s': %w", credentialID, err)
	}
	if err := ctx.GetStub().PutState(credentialKey, credentialBytes); err != nil {
		return fmt.Errorf("RevokeCredential: failed to save credential '%s' to ledger: %w", credentialID, err)
	}

	eventPayload := map[string]interface{}{
		"credentialId": credential.ID,
		"revokedBy":    credential.RevokedBy,
		"revokedAt":    now,
	}
	s.emitCredentialEvent(ctx, "CredentialRevoked", credential.ID, eventPayload)
	logger.Infof("Credential '%s' revoked successfully by '%s'", credentialID, actor.alias)
	return nil
}

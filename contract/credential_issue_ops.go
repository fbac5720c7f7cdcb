package contract

import (
	"encoding/json"
	"fmt"
	"time"

	"credchain/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Issuance Operations ---

// requireIssueAuthority enforces the issuance rule: the caller must be the
// subject's owner or a genesis issuer.
func (s *CredchainSmartContract) requireIssueAuthority(im *IssuerManager, actor *actorInfo, subject *model.Subject) error {
	if actor.fullID == subject.Issuer {
		return nil
	}
	isGenesis, err := im.IsGenesisIssuer(actor.fullID)
	if err != nil {
		return fmt.Errorf("failed to check genesis issuer status for '%s': %w", actor.fullID, err)
	}
	if !isGenesis {
		return model.NewError(model.CodeUnauthorized, fmt.Sprintf("identity '%s' is neither the owner of subject '%s' nor a genesis issuer", actor.fullID, subject.ID))
	}
	return nil
}

// issueOne allocates the next credential ID and writes the record. Callers
// must have completed all validation and authorization first, so a failed
// transaction never consumes an ID. Event emission stays with the caller:
// Fabric keeps only the last SetEvent of a transaction, so batch issuance
// emits a single batch event instead of one per credential.
func (s *CredchainSmartContract) issueOne(ctx contractapi.TransactionContextInterface, subject *model.Subject, holderID, credentialType string, actor *actorInfo, now time.Time) (*model.Credential, error) {
	credentialID, err := s.nextSequence(ctx, credentialSequenceName)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate credential ID: %w", err)
	}
	credentialKey, err := s.createCredentialCompositeKey(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("failed to create composite key for credential '%s': %w", credentialID, err)
	}

	credential := model.Credential{
		ObjectType:     credentialObjectType,
		ID:             credentialID,
		Subject:        subject.ID,
		Holder:         holderID,
		CredentialType: credentialType,
		IssuedAt:       now,
		IssuedBy:       actor.fullID,
		Revoked:        false,
	}
	credentialBytes, err := json.Marshal(credential)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credential '%s': %w", credentialID, err)
	}
	if err := ctx.GetStub().PutState(credentialKey, credentialBytes); err != nil {
		return nil, fmt.Errorf("failed to save credential '%s' to ledger: %w", credentialID, err)
	}
	return &credential, nil
}

// IssueCredential issues a credential of the given type about a subject to a
// holder. Only the subject's owner or a genesis issuer may issue. The holder
// is an opaque identity string; no enrollment is required.
func (s *CredchainSmartContract) IssueCredential(ctx contractapi.TransactionContextInterface,
	subjectID string, holderID string, credentialType string) (*model.Credential, error) {

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("IssueCredential: failed to get actor info: %w", err)
	}
	im := NewIssuerManager(ctx)
	config, err := im.GetLedgerConfig()
	if err != nil {
		return nil, fmt.Errorf("IssueCredential: %w", err)
	}

	logger.Infof("IssueCredential: Actor '%s' (alias: '%s') issuing '%s' credential on subject '%s' to holder '%s'",
		actor.fullID, actor.alias, credentialType, subjectID, holderID)

	if err := s.validateRequiredString(subjectID, "subjectID", maxStringInputLength); err != nil {
		return nil, err
	}
	if err := s.validateRequiredString(holderID, "holderID", maxStringInputLength); err != nil {
		return nil, err
	}
	if err := s.validateCredentialType(config, credentialType); err != nil {
		return nil, err
	}

	subject, err := s.getSubjectByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if err := s.requireIssueAuthority(im, actor, subject); err != nil {
		return nil, err
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("IssueCredential: failed to get transaction timestamp: %w", err)
	}

	credential, err := s.issueOne(ctx, subject, holderID, credentialType, actor, now)
	if err != nil {
		return nil, fmt.Errorf("IssueCredential: %w", err)
	}

	eventPayload := map[string]interface{}{
		"credentialId":   credential.ID,
		"subjectId":      credential.Subject,
		"holder":         credential.Holder,
		"credentialType": credential.CredentialType,
		"issuedBy":       credential.IssuedBy,
		"issuedAt":       credential.IssuedAt,
	}
	s.emitCredentialEvent(ctx, "CredentialIssued", credential.ID, eventPayload)
	logger.Infof("Credential '%s' issued successfully by '%s' on subject '%s'", credential.ID, actor.alias, subjectID)
	return credential, nil
}

// IssueCredentialsForHolders issues one credential of the given type per
// holder, in a single transaction. The batch is atomic: any failure aborts
// the transaction and none of the credentials exist. holdersJSON is a JSON
// array of holder identity strings.
func (s *CredchainSmartContract) IssueCredentialsForHolders(ctx contractapi.TransactionContextInterface,
	subjectID string, credentialType string, holdersJSON string) ([]*model.Credential, error) {

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("IssueCredentialsForHolders: failed to get actor info: %w", err)
	}
	im := NewIssuerManager(ctx)
	config, err := im.GetLedgerConfig()
	if err != nil {
		return nil, fmt.Errorf("IssueCredentialsForHolders: %w", err)
	}

	if err := s.validateRequiredString(subjectID, "subjectID", maxStringInputLength); err != nil {
		return nil, err
	}
	if err := s.validateCredentialType(config, credentialType); err != nil {
		return nil, err
	}
	holders, err := s.validateHoldersArgs(holdersJSON)
	if err != nil {
		return nil, fmt.Errorf("IssueCredentialsForHolders: %w", err)
	}

	logger.Infof("IssueCredentialsForHolders: Actor '%s' (alias: '%s') issuing '%s' credentials on subject '%s' to %d holder(s)",
		actor.fullID, actor.alias, credentialType, subjectID, len(holders))

	subject, err := s.getSubjectByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if err := s.requireIssueAuthority(im, actor, subject); err != nil {
		return nil, err
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("IssueCredentialsForHolders: failed to get transaction timestamp: %w", err)
	}

	credentials := make([]*model.Credential, 0, len(holders))
	credentialIDs := make([]string, 0, len(holders))
	for _, holderID := range holders {
		credential, issueErr := s.issueOne(ctx, subject, holderID, credentialType, actor, now)
		if issueErr != nil {
			return nil, fmt.Errorf("IssueCredentialsForHolders: holder '%s': %w", holderID, issueErr)
		}
		credentials = append(credentials, credential)
		credentialIDs = append(credentialIDs, credential.ID)
	}

	eventPayload := map[string]interface{}{
		"credentialIds":  credentialIDs,
		"subjectId":      subject.ID,
		"holders":        holders,
		"credentialType": credentialType,
		"issuedBy":       actor.fullID,
		"issuedAt":       now,
	}
	s.emitCredentialEvent(ctx, "CredentialsBatchIssued", subject.ID, eventPayload)
	logger.Infof("IssueCredentialsForHolders: Issued %d credential(s) on subject '%s' by '%s'", len(credentials), subjectID, actor.alias)
	return credentials, nil
}

package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"credchain/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Subject Operations ---

// CreateSubject registers a new credential subject and returns the stored
// record. The caller becomes the subject's issuer (owner); ownership never
// changes afterwards. Under the GENESIS_ISSUERS_ONLY policy only genesis
// issuers may create subjects. subjectDataJSON is optional descriptive data:
// {"name":..., "description":...}.
func (s *CredchainSmartContract) CreateSubject(ctx contractapi.TransactionContextInterface, subjectDataJSON string) (*model.Subject, error) {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("CreateSubject: failed to get actor info: %w", err)
	}
	im := NewIssuerManager(ctx)
	config, err := im.GetLedgerConfig()
	if err != nil {
		return nil, fmt.Errorf("CreateSubject: %w", err)
	}
	if config.SubjectCreationPolicy == model.SubjectCreationGenesisIssuersOnly {
		if err := im.RequireGenesisIssuer(); err != nil {
			return nil, err
		}
	}

	logger.Infof("CreateSubject: Actor '%s' (alias: '%s') creating subject", actor.fullID, actor.alias)

	sdArgs, err := s.validateSubjectDataArgs(subjectDataJSON)
	if err != nil {
		return nil, fmt.Errorf("CreateSubject: invalid subjectDataJSON: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("CreateSubject: failed to get transaction timestamp: %w", err)
	}

	// All checks passed; allocating the ID is the last step before the write.
	subjectID, err := s.nextSequence(ctx, subjectSequenceName)
	if err != nil {
		return nil, fmt.Errorf("CreateSubject: failed to allocate subject ID: %w", err)
	}
	subjectKey, err := s.createSubjectCompositeKey(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("CreateSubject: failed to create composite key for subject '%s': %w", subjectID, err)
	}

	subject := model.Subject{
		ObjectType:  subjectObjectType,
		ID:          subjectID,
		Issuer:      actor.fullID,
		Name:        sdArgs.Name,
		Description: sdArgs.Description,
		CreatedAt:   now,
	}
	subjectBytes, err := json.Marshal(subject)
	if err != nil {
		return nil, fmt.Errorf("CreateSubject: failed to marshal subject '%s': %w", subjectID, err)
	}
	if err := ctx.GetStub().PutState(subjectKey, subjectBytes); err != nil {
		return nil, fmt.Errorf("CreateSubject: failed to save subject '%s' to ledger: %w", subjectID, err)
	}

	eventPayload := map[string]interface{}{
		"subjectId": subject.ID,
		"issuer":    subject.Issuer,
	}
	s.emitCredentialEvent(ctx, "SubjectCreated", subject.ID, eventPayload)
	logger.Infof("Subject '%s' created successfully by '%s'", subjectID, actor.alias)
	return &subject, nil
}

// getSubjectByID is an internal helper to retrieve and unmarshal a subject.
func (s *CredchainSmartContract) getSubjectByID(ctx contractapi.TransactionContextInterface, subjectID string) (*model.Subject, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, model.NewError(model.CodeInvalidInput, "subjectID cannot be empty")
	}
	subjectKey, err := s.createSubjectCompositeKey(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("getSubjectByID: failed to create key for subject '%s': %w", subjectID, err)
	}

	subjectBytes, err := ctx.GetStub().GetState(subjectKey)
	if err != nil {
		return nil, fmt.Errorf("getSubjectByID: failed to read subject '%s' from ledger: %w", subjectID, err)
	}
	if subjectBytes == nil {
		return nil, model.NewError(model.CodeSubjectNotFound, fmt.Sprintf("subject with ID '%s' does not exist", subjectID))
	}

	var subject model.Subject
	if err = json.Unmarshal(subjectBytes, &subject); err != nil {
		return nil, fmt.Errorf("getSubjectByID: failed to unmarshal subject '%s' data: %w", subjectID, err)
	}
	return &subject, nil
}

// GetSubject returns the full subject record.
func (s *CredchainSmartContract) GetSubject(ctx contractapi.TransactionContextInterface, subjectID string) (*model.Subject, error) {
	logger.Debugf("GetSubject: Querying subject '%s'", subjectID)
	if err := s.validateRequiredString(subjectID, "subjectID", maxStringInputLength); err != nil {
		return nil, err
	}
	return s.getSubjectByID(ctx, subjectID)
}

// GetSubjectOwner returns the issuer (owner) identity of a subject.
func (s *CredchainSmartContract) GetSubjectOwner(ctx contractapi.TransactionContextInterface, subjectID string) (string, error) {
	logger.Debugf("GetSubjectOwner: Querying owner of subject '%s'", subjectID)
	if err := s.validateRequiredString(subjectID, "subjectID", maxStringInputLength); err != nil {
		return "", err
	}
	subject, err := s.getSubjectByID(ctx, subjectID)
	if err != nil {
		return "", err
	}
	return subject.Issuer, nil
}

// GetAllSubjects returns a page of subject records.
func (s *CredchainSmartContract) GetAllSubjects(ctx contractapi.TransactionContextInterface, pageSizeStr string, bookmark string) (*model.PaginatedSubjectResponse, error) {
	pageSize, err := strconv.ParseInt(pageSizeStr, 10, 32)
	if err != nil || pageSize <= 0 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	logger.Infof("GetAllSubjects: Getting all subjects (pageSize: %d, bookmark: '%s')", pageSize, bookmark)

	resultsIterator, metadata, err := ctx.GetStub().GetStateByPartialCompositeKeyWithPagination(subjectObjectType, []string{}, int32(pageSize), bookmark)
	if err != nil {
		return nil, fmt.Errorf("GetAllSubjects: failed to get subjects iterator: %w", err)
	}
	defer resultsIterator.Close()

	subjects := []*model.Subject{}
	fetchedCount := int32(0)

	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetAllSubjects: Error iterating results: %v. Skipping.", iterErr)
			continue
		}
		var subject model.Subject
		if errUnmarshal := json.Unmarshal(queryResponse.Value, &subject); errUnmarshal != nil {
			logger.Warningf("GetAllSubjects: Error unmarshalling subject: %v. Skipping.", errUnmarshal)
			continue
		}
		subjects = append(subjects, &subject)
		fetchedCount++
	}

	logger.Infof("GetAllSubjects: Retrieved %d subjects for this page.", fetchedCount)
	return &model.PaginatedSubjectResponse{
		Subjects:     subjects,
		NextBookmark: metadata.GetBookmark(),
		FetchedCount: fetchedCount,
	}, nil
}

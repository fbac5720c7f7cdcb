package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"credchain/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Query Functions ---

// getCredentialByID is an internal helper to retrieve and unmarshal a credential.
func (s *CredchainSmartContract) getCredentialByID(ctx contractapi.TransactionContextInterface, credentialID string) (*model.Credential, error) {
	if strings.TrimSpace(credentialID) == "" {
		return nil, model.NewError(model.CodeInvalidInput, "credentialID cannot be empty")
	}
	credentialKey, err := s.createCredentialCompositeKey(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("getCredentialByID: failed to create key for credential '%s': %w", credentialID, err)
	}

	credentialBytes, err := ctx.GetStub().GetState(credentialKey)
	if err != nil {
		return nil, fmt.Errorf("getCredentialByID: failed to read credential '%s' from ledger: %w", credentialID, err)
	}
	if credentialBytes == nil {
		return nil, model.NewError(model.CodeCredentialNotFound, fmt.Sprintf("credential with ID '%s' does not exist", credentialID))
	}

	var credential model.Credential
	if err = json.Unmarshal(credentialBytes, &credential); err != nil {
		return nil, fmt.Errorf("getCredentialByID: failed to unmarshal credential '%s' data: %w", credentialID, err)
	}
	return &credential, nil
}

// GetCredential returns the full credential record, revoked or not.
func (s *CredchainSmartContract) GetCredential(ctx contractapi.TransactionContextInterface, credentialID string) (*model.Credential, error) {
	logger.Debugf("GetCredential: Querying credential '%s'", credentialID)
	if err := s.validateRequiredString(credentialID, "credentialID", maxStringInputLength); err != nil {
		return nil, err
	}
	return s.getCredentialByID(ctx, credentialID)
}

// VerifyCredential answers whether a credential is currently valid. A
// credential that does not exist or has been revoked yields valid=false with
// a reason; neither case is an error. Errors are reserved for bad input and
// ledger read failures.
func (s *CredchainSmartContract) VerifyCredential(ctx contractapi.TransactionContextInterface, credentialID string) (*model.VerificationResult, error) {
	logger.Debugf("VerifyCredential: Verifying credential '%s'", credentialID)
	if err := s.validateRequiredString(credentialID, "credentialID", maxStringInputLength); err != nil {
		return nil, err
	}

	credential, err := s.getCredentialByID(ctx, credentialID)
	if err != nil {
		if model.HasCode(err, model.CodeCredentialNotFound) {
			return &model.VerificationResult{CredentialID: credentialID, Valid: false, Reason: model.VerifyReasonNotFound}, nil
		}
		return nil, err
	}
	if credential.Revoked {
		return &model.VerificationResult{CredentialID: credentialID, Valid: false, Reason: model.VerifyReasonRevoked}, nil
	}
	return &model.VerificationResult{CredentialID: credentialID, Valid: true, Reason: ""}, nil
}

// ListCredentialsBySubject returns every credential issued about a subject,
// revoked ones included. The subject must exist; a subject with no
// credentials yields an empty list.
func (s *CredchainSmartContract) ListCredentialsBySubject(ctx contractapi.TransactionContextInterface, subjectID string) ([]*model.Credential, error) {
	logger.Debugf("ListCredentialsBySubject: Querying credentials for subject '%s'", subjectID)
	if err := s.validateRequiredString(subjectID, "subjectID", maxStringInputLength); err != nil {
		return nil, err
	}
	if _, err := s.getSubjectByID(ctx, subjectID); err != nil {
		return nil, err
	}

	credentials := []*model.Credential{}

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(credentialObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("ListCredentialsBySubject: failed to get credential iterator: %w", err)
	}
	defer resultsIterator.Close()

	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("ListCredentialsBySubject: Error iterating results: %v. Skipping.", iterErr)
			continue
		}
		var credential model.Credential
		if errUnmarshal := json.Unmarshal(queryResponse.Value, &credential); errUnmarshal != nil {
			logger.Warningf("ListCredentialsBySubject: Error unmarshalling credential: %v. Skipping.", errUnmarshal)
			continue
		}
		if credential.Subject == subjectID {
			credentials = append(credentials, &credential)
		}
	}

	logger.Infof("ListCredentialsBySubject: Found %d credential(s) for subject '%s'", len(credentials), subjectID)
	return credentials, nil
}

// ListCredentialsByHolder returns a page of credentials held by the given
// identity. Uses a CouchDB rich query when available and falls back to a
// paginated full scan on LevelDB.
func (s *CredchainSmartContract) ListCredentialsByHolder(ctx contractapi.TransactionContextInterface, holderID string, pageSizeStr string, bookmark string) (*model.PaginatedCredentialResponse, error) {
	if err := s.validateRequiredString(holderID, "holderID", maxStringInputLength); err != nil {
		return nil, err
	}

	pageSize, err := strconv.ParseInt(pageSizeStr, 10, 32)
	if err != nil || pageSize <= 0 {
		logger.Warningf("ListCredentialsByHolder: Invalid pageSize '%s', using default of 10. Error: %v", pageSizeStr, err)
		pageSize = 10
	}
	if pageSize > 100 {
		logger.Warningf("ListCredentialsByHolder: Requested pageSize %d exceeds max of 100. Capping at 100.", pageSize)
		pageSize = 100
	}

	logger.Infof("ListCredentialsByHolder: Getting credentials for holder '%s' with pageSize: %d, bookmark: '%s'", holderID, pageSize, bookmark)

	queryString := fmt.Sprintf(`{"selector":{"objectType":"%s", "holder":"%s"}, "use_index":"_design/indexObjectTypeHolderDoc"}`, credentialObjectType, holderID)

	resultsIterator, metadata, err := ctx.GetStub().GetQueryResultWithPagination(queryString, int32(pageSize), bookmark)
	if err != nil {
		logger.Warningf("ListCredentialsByHolder: CouchDB GetQueryResultWithPagination for holder '%s' failed: %v. Falling back to full scan (SLOW).", holderID, err)

		allResultsIterator, metadataFallback, errScan := ctx.GetStub().GetStateByPartialCompositeKeyWithPagination(credentialObjectType, []string{}, int32(pageSize), bookmark)
		if errScan != nil {
			return nil, fmt.Errorf("ListCredentialsByHolder: CouchDB query failed (%v) and LevelDB paginated scan also failed (%w)", err, errScan)
		}
		defer allResultsIterator.Close()

		filteredCredentials := []*model.Credential{}
		var actualFetchedCount int32 = 0

		for allResultsIterator.HasNext() {
			queryResponse, iterErr := allResultsIterator.Next()
			if iterErr != nil {
				logger.Warningf("ListCredentialsByHolder fallback: Error iterating results: %v. Skipping.", iterErr)
				continue
			}
			var credential model.Credential
			if errUnmarshal := json.Unmarshal(queryResponse.Value, &credential); errUnmarshal != nil {
				logger.Warningf("ListCredentialsByHolder fallback: Error unmarshalling credential: %v. Skipping.", errUnmarshal)
				continue
			}
			if credential.Holder == holderID {
				filteredCredentials = append(filteredCredentials, &credential)
				actualFetchedCount++
			}
		}

		return &model.PaginatedCredentialResponse{
			Credentials:  filteredCredentials,
			NextBookmark: metadataFallback.GetBookmark(),
			FetchedCount: actualFetchedCount,
		}, nil
	}
	defer resultsIterator.Close()

	credentialsFromQuery := []*model.Credential{}
	var fetchedCountCouchDB int32 = 0

	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("ListCredentialsByHolder: Error iterating CouchDB results: %v. Skipping.", iterErr)
			continue
		}
		var credential model.Credential
		if errUnmarshal := json.Unmarshal(queryResponse.Value, &credential); errUnmarshal != nil {
			logger.Warningf("ListCredentialsByHolder: Error unmarshalling credential: %v. Skipping.", errUnmarshal)
			continue
		}
		credentialsFromQuery = append(credentialsFromQuery, &credential)
		fetchedCountCouchDB++
	}

	logger.Infof("ListCredentialsByHolder (CouchDB): Found %d credential(s) for holder '%s' on this page.", fetchedCountCouchDB, holderID)
	return &model.PaginatedCredentialResponse{
		Credentials:  credentialsFromQuery,
		NextBookmark: metadata.GetBookmark(),
		FetchedCount: fetchedCountCouchDB,
	}, nil
}

// GetMyCredentials returns a page of credentials held by the calling identity.
func (s *CredchainSmartContract) GetMyCredentials(ctx contractapi.TransactionContextInterface, pageSizeStr string, bookmark string) (*model.PaginatedCredentialResponse, error) {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetMyCredentials: failed to get actor info: %w", err)
	}
	logger.Infof("GetMyCredentials: Getting credentials for current identity '%s' (alias: %s)", actor.fullID, actor.alias)
	return s.ListCredentialsByHolder(ctx, actor.fullID, pageSizeStr, bookmark)
}

// GetAllCredentials returns a page of credential records.
func (s *CredchainSmartContract) GetAllCredentials(ctx contractapi.TransactionContextInterface, pageSizeStr string, bookmark string) (*model.PaginatedCredentialResponse, error) {
	pageSize, err := strconv.ParseInt(pageSizeStr, 10, 32)
	if err != nil || pageSize <= 0 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	logger.Infof("GetAllCredentials: Getting all credentials (pageSize: %d, bookmark: '%s')", pageSize, bookmark)

	resultsIterator, metadata, err := ctx.GetStub().GetStateByPartialCompositeKeyWithPagination(credentialObjectType, []string{}, int32(pageSize), bookmark)
	if err != nil {
		return nil, fmt.Errorf("GetAllCredentials: failed to get credentials iterator: %w", err)
	}
	defer resultsIterator.Close()

	credentials := []*model.Credential{}
	fetchedCount := int32(0)

	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetAllCredentials: Error iterating results: %v. Skipping.", iterErr)
			continue
		}
		var credential model.Credential
		if errUnmarshal := json.Unmarshal(queryResponse.Value, &credential); errUnmarshal != nil {
			logger.Warningf("GetAllCredentials: Error unmarshalling credential: %v. Skipping.", errUnmarshal)
			continue
		}
		credentials = append(credentials, &credential)
		fetchedCount++
	}

	logger.Infof("GetAllCredentials: Retrieved %d credentials for this page.", fetchedCount)
	return &model.PaginatedCredentialResponse{
		Credentials:  credentials,
		NextBookmark: metadata.GetBookmark(),
		FetchedCount: fetchedCount,
	}, nil
}

// GetCredentialHistory returns the committed write history of a credential,
// oldest first or newest first depending on the backing ledger's iterator
// order. Each entry carries the raw stored value for audit.
func (s *CredchainSmartContract) GetCredentialHistory(ctx contractapi.TransactionContextInterface, credentialID string) ([]model.HistoryEntry, error) {
	logger.Debugf("GetCredentialHistory: Querying history for credential '%s'", credentialID)
	if err := s.validateRequiredString(credentialID, "credentialID", maxStringInputLength); err != nil {
		return nil, err
	}
	if _, err := s.getCredentialByID(ctx, credentialID); err != nil {
		return nil, err
	}

	credentialKey, err := s.createCredentialCompositeKey(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("GetCredentialHistory: failed to create key for credential '%s': %w", credentialID, err)
	}
	historyIter, err := ctx.GetStub().GetHistoryForKey(credentialKey)
	if err != nil {
		return nil, fmt.Errorf("GetCredentialHistory: failed to get history for credential '%s': %w", credentialID, err)
	}
	defer historyIter.Close()

	historyEntries := []model.HistoryEntry{}

	for historyIter.HasNext() {
		historyItem, iterErr := historyIter.Next()
		if iterErr != nil {
			logger.Warningf("GetCredentialHistory: Error iterating history for '%s': %v. Skipping entry.", credentialID, iterErr)
			continue
		}
		var pastState model.Credential
		_ = json.Unmarshal(historyItem.Value, &pastState)

		actorIDForHistory := pastState.IssuedBy
		action := "ISSUED"
		if pastState.Revoked {
			actorIDForHistory = pastState.RevokedBy
			action = "REVOKED"
		}
		if historyItem.IsDelete {
			action = "DELETED"
		}

		entry := model.HistoryEntry{
			TxID:      historyItem.TxId,
			Timestamp: historyItem.Timestamp.AsTime(),
			IsDelete:  historyItem.IsDelete,
			Value:     string(historyItem.Value),
			ActorID:   actorIDForHistory,
			Action:    action,
		}
		historyEntries = append(historyEntries, entry)
	}

	logger.Infof("GetCredentialHistory: Found %d history entry(ies) for credential '%s'", len(historyEntries), credentialID)
	return historyEntries, nil
}

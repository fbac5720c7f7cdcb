package model

import "time"

// SubjectCreationPolicy defines who may create new subjects.
type SubjectCreationPolicy string

const (
	SubjectCreationOpenToAll          SubjectCreationPolicy = "OPEN_TO_ALL"          // Any identity may create a subject and becomes its owning issuer
	SubjectCreationGenesisIssuersOnly SubjectCreationPolicy = "GENESIS_ISSUERS_ONLY" // Only genesis issuers may create subjects
)

// RevocationPolicy defines who may revoke an issued credential.
type RevocationPolicy string

const (
	RevocationIssuerOnly      RevocationPolicy = "ISSUER_ONLY"      // Only the identity that issued the credential may revoke it
	RevocationGenesisOverride RevocationPolicy = "GENESIS_OVERRIDE" // Genesis issuers may revoke any credential in addition to its issuer
)

// Verification reasons returned when a credential is not currently valid.
const (
	VerifyReasonRevoked  = "revoked"
	VerifyReasonNotFound = "not found"
)

// Subject is an entity for which credentials are issued (e.g. a course,
// workshop, or event). The issuer recorded at creation owns the subject for
// the lifetime of the ledger; subjects are never deleted or reassigned.
type Subject struct {
	ObjectType  string    `json:"objectType"` // "Subject"
	ID          string    `json:"id"`         // Assigned from the subject sequence, never reused
	Issuer      string    `json:"issuer"`     // Full ID of the creating identity, immutable
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Credential asserts that a holder received a credential of a given type for
// a subject. The core fields are immutable once issued; revocation is the
// only permitted mutation and is terminal.
type Credential struct {
	ObjectType     string     `json:"objectType"`     // "Credential"
	ID             string     `json:"id"`             // Assigned from the credential sequence, unique across the store
	Subject        string     `json:"subject"`        // ID of an existing Subject
	Holder         string     `json:"holder"`         // Identity the credential is issued to
	CredentialType string     `json:"credentialType"` // One of the configured credential types
	IssuedAt       time.Time  `json:"issuedAt"`       // Ledger time of issuance
	IssuedBy       string     `json:"issuedBy"`       // Identity that performed the issuance
	Revoked        bool       `json:"revoked"`
	RevokedAt      *time.Time `json:"revokedAt"` // Set exactly once, on revocation
	RevokedBy      string     `json:"revokedBy"` // Identity that performed the revocation
}

// LedgerConfig is the one-time genesis configuration. Its presence on the
// ledger is what marks the ledger as bootstrapped.
type LedgerConfig struct {
	ObjectType            string                `json:"objectType"` // "LedgerConfig"
	SubjectCreationPolicy SubjectCreationPolicy `json:"subjectCreationPolicy"`
	RevocationPolicy      RevocationPolicy      `json:"revocationPolicy"`
	CredentialTypes       []string              `json:"credentialTypes"` // Closed set of issuable types
	BootstrappedAt        time.Time             `json:"bootstrappedAt"`
	BootstrappedBy        string                `json:"bootstrappedBy"`
}

// VerificationResult is the answer served to external parties checking a
// credential's current standing. Valid is false for revoked and unknown
// credentials alike; Reason distinguishes the two.
type VerificationResult struct {
	CredentialID string `json:"credentialId"`
	Valid        bool   `json:"valid"`
	Reason       string `json:"reason"` // Empty when valid
}

// HistoryEntry represents one committed state of a credential.
type HistoryEntry struct {
	TxID      string    `json:"txId"`
	Timestamp time.Time `json:"timestamp"`
	IsDelete  bool      `json:"isDelete"`
	Value     string    `json:"value"`   // Raw JSON value of the credential at that time
	ActorID   string    `json:"actorId"` // Issuer or revoker responsible for that state
	Action    string    `json:"action"`  // "ISSUED" or "REVOKED"
}

// PaginatedCredentialResponse is returned by paginated credential queries.
type PaginatedCredentialResponse struct {
	Credentials  []*Credential `json:"credentials"`
	NextBookmark string        `json:"nextBookmark"`
	FetchedCount int32         `json:"fetchedCount"`
}

// PaginatedSubjectResponse is returned by paginated subject queries.
type PaginatedSubjectResponse struct {
	Subjects     []*Subject `json:"subjects"`
	NextBookmark string     `json:"nextBookmark"`
	FetchedCount int32      `json:"fetchedCount"`
}

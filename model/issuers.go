// File: model/issuers.go
package model

import "time"

// GenesisIssuerInfo stores one member of the genesis issuer set. These
// records are written exactly once, by BootstrapLedger, and never mutated.
type GenesisIssuerInfo struct {
	ObjectType string    `json:"objectType"` // Set to the composite key object type (GenesisIssuer)
	FullID     string    `json:"fullId"`     // Full X.509 identity string of the issuer
	AddedBy    string    `json:"addedBy"`    // Full ID of the identity that submitted the bootstrap
	AddedAt    time.Time `json:"addedAt"`    // Ledger timestamp of the bootstrap transaction
}

package contract

import (
	"testing"

	"credchain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBootstrapConfig = `{"genesisIssuers":["` + aliceID + `"]}`

func bootstrapForTest(t *testing.T, sc *CredchainSmartContract, ctx *mockTransactionContext, configJSON string) {
	t.Helper()
	require.NoError(t, sc.BootstrapLedger(ctx, configJSON))
}

func TestBootstrapLedger_CommitsConfigAndIssuers(t *testing.T) {
	sc := &CredchainSmartContract{}
	ctx, stub := newTestContext(aliceID)

	configJSON := `{
		"genesisIssuers": ["` + aliceID + `", "` + bobID + `"],
		"subjectCreationPolicy": "GENESIS_ISSUERS_ONLY",
		"revocationPolicy": "GENESIS_OVERRIDE",
		"credentialTypes": ["Attended", "Speaker"]
	}`
	require.NoError(t, sc.BootstrapLedger(ctx, configJSON))

	config, err := sc.GetLedgerConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SubjectCreationGenesisIssuersOnly, config.SubjectCreationPolicy)
	assert.Equal(t, model.RevocationGenesisOverride, config.RevocationPolicy)
	assert.Equal(t, []string{"Attended", "Speaker"}, config.CredentialTypes)
	assert.Equal(t, aliceID, config.BootstrappedBy)
	assert.Equal(t, stub.txTime, config.BootstrappedAt)

	isGenesis, err := sc.IsGenesisIssuer(ctx, aliceID)
	require.NoError(t, err)
	assert.True(t, isGenesis)
	isGenesis, err = sc.IsGenesisIssuer(ctx, bobID)
	require.NoError(t, err)
	assert.True(t, isGenesis)
	isGenesis, err = sc.IsGenesisIssuer(ctx, caraID)
	require.NoError(t, err)
	assert.False(t, isGenesis)

	issuers, err := sc.GetGenesisIssuers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{aliceID, bobID}, issuers)

	assert.Empty(t, stub.events)
}

func TestBootstrapLedger_AppliesDefaults(t *testing.T) {
	sc := &CredchainSmartContract{}
	ctx, _ := newTestContext(aliceID)

	bootstrapForTest(t, sc, ctx, defaultBootstrapConfig)

	config, err := sc.GetLedgerConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SubjectCreationOpenToAll, config.SubjectCreationPolicy)
	assert.Equal(t, model.RevocationIssuerOnly, config.RevocationPolicy)
	assert.Equal(t, []string{"Attended", "Conducted", "Volunteered"}, config.CredentialTypes)
}

func TestBootstrapLedger_SecondRunFails(t *testing.T) {
	sc := &CredchainSmartContract{}
	ctx, _ := newTestContext(aliceID)

	bootstrapForTest(t, sc, ctx, defaultBootstrapConfig)

	err := sc.BootstrapLedger(ctx, `{"genesisIssuers":["`+bobID+`"]}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.NewError(model.CodeAlreadyInitialized, ""))

	// The original genesis set stays in force.
	issuers, err := sc.GetGenesisIssuers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{aliceID}, issuers)
}

func TestBootstrapLedger_RejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name       string
		configJSON string
	}{
		{"empty string", ""},
		{"malformed JSON", `{"genesisIssuers": [`},
		{"no issuers", `{"genesisIssuers": []}`},
		{"blank issuer", `{"genesisIssuers": [" "]}`},
		{"duplicate issuers", `{"genesisIssuers": ["` + aliceID + `", "` + aliceID + `"]}`},
		{"unknown subject policy", `{"genesisIssuers": ["` + aliceID + `"], "subjectCreationPolicy": "EVERYONE"}`},
		{"unknown revocation policy", `{"genesisIssuers": ["` + aliceID + `"], "revocationPolicy": "NOBODY"}`},
		{"duplicate credential types", `{"genesisIssuers": ["` + aliceID + `"], "credentialTypes": ["Attended", "Attended"]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc := &CredchainSmartContract{}
			ctx, _ := newTestContext(aliceID)

			err := sc.BootstrapLedger(ctx, tc.configJSON)
			require.Error(t, err)
			assert.True(t, model.HasCode(err, model.CodeInvalidInput), "expected INVALID_INPUT, got: %v", err)

			// A failed bootstrap leaves the ledger un-bootstrapped.
			_, err = sc.GetLedgerConfig(ctx)
			assert.ErrorIs(t, err, model.NewError(model.CodeNotBootstrapped, ""))
		})
	}
}

func TestOperationsRequireBootstrap(t *testing.T) {
	sc := &CredchainSmartContract{}
	ctx, _ := newTestContext(aliceID)

	_, err := sc.CreateSubject(ctx, "")
	assert.ErrorIs(t, err, model.NewError(model.CodeNotBootstrapped, ""))

	_, err = sc.IssueCredential(ctx, "1", bobID, "Attended")
	assert.ErrorIs(t, err, model.NewError(model.CodeNotBootstrapped, ""))

	err = sc.RevokeCredential(ctx, "1")
	assert.ErrorIs(t, err, model.NewError(model.CodeNotBootstrapped, ""))
}

func TestIsGenesisIssuer_EmptyIdentity(t *testing.T) {
	sc := &CredchainSmartContract{}
	ctx, _ := newTestContext(aliceID)
	bootstrapForTest(t, sc, ctx, defaultBootstrapConfig)

	_, err := sc.IsGenesisIssuer(ctx, "  ")
	assert.Error(t, err)
}

func TestAmIGenesisIssuer(t *testing.T) {
	sc := &CredchainSmartContract{}
	ctx, _ := newTestContext(aliceID)
	bootstrapForTest(t, sc, ctx, defaultBootstrapConfig)

	isGenesis, err := sc.AmIGenesisIssuer(ctx)
	require.NoError(t, err)
	assert.True(t, isGenesis)

	ctx.setIdentity(bobID)
	isGenesis, err = sc.AmIGenesisIssuer(ctx)
	require.NoError(t, err)
	assert.False(t, isGenesis)
}

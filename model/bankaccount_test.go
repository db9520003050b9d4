package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveBankAccountCurrentShape(t *testing.T) {
	provider := &Provider{
		ProviderID:  "prov_1",
		DisplayName: "Musterfirma GmbH",
		Profile: map[string]interface{}{
			"bankDetails": map[string]interface{}{
				"iban":          "de89 3704 0044 0532 0130 00",
				"bic":           "COBADEFFXXX",
				"accountHolder": "Max Mustermann",
			},
		},
	}

	account, ok := provider.ResolveBankAccount()
	assert.True(t, ok)
	assert.Equal(t, "DE89370400440532013000", account.IBAN)
	assert.Equal(t, "COBADEFFXXX", account.BIC)
	assert.Equal(t, "Max Mustermann", account.Name)
}

func TestResolveBankAccountLegacyShapes(t *testing.T) {
	// payout.* shape, no holder name -> display name fallback
	provider := &Provider{
		ProviderID:  "prov_2",
		DisplayName: "Altbau Services",
		Profile: map[string]interface{}{
			"payout": map[string]interface{}{
				"iban": "DE02120300000000202051",
			},
		},
	}
	account, ok := provider.ResolveBankAccount()
	assert.True(t, ok)
	assert.Equal(t, "DE02120300000000202051", account.IBAN)
	assert.Equal(t, "Altbau Services", account.Name)

	// nested companyProfile shape
	provider = &Provider{
		ProviderID: "prov_3",
		Profile: map[string]interface{}{
			"companyProfile": map[string]interface{}{
				"bankAccount": map[string]interface{}{
					"iban":       "DE02100100100006820101",
					"holderName": "Handwerk AG",
				},
			},
		},
	}
	account, ok = provider.ResolveBankAccount()
	assert.True(t, ok)
	assert.Equal(t, "DE02100100100006820101", account.IBAN)
	assert.Equal(t, "Handwerk AG", account.Name)

	// flat top-level shape
	provider = &Provider{
		ProviderID: "prov_4",
		Profile: map[string]interface{}{
			"iban":              "DE02500105170137075030",
			"accountHolderName": "Solo Dienstleister",
		},
	}
	account, ok = provider.ResolveBankAccount()
	assert.True(t, ok)
	assert.Equal(t, "DE02500105170137075030", account.IBAN)
}

func TestResolveBankAccountPrecedence(t *testing.T) {
	// newest shape wins even when older shapes are present
	provider := &Provider{
		ProviderID: "prov_5",
		Profile: map[string]interface{}{
			"bankDetails": map[string]interface{}{
				"iban":          "DE89370400440532013000",
				"accountHolder": "Current Holder",
			},
			"payout": map[string]interface{}{
				"iban":        "DE02120300000000202051",
				"accountName": "Old Holder",
			},
		},
	}
	account, ok := provider.ResolveBankAccount()
	assert.True(t, ok)
	assert.Equal(t, "DE89370400440532013000", account.IBAN)
	assert.Equal(t, "Current Holder", account.Name)
}

func TestResolveBankAccountMissing(t *testing.T) {
	provider := &Provider{ProviderID: "prov_6", Profile: map[string]interface{}{}}
	_, ok := provider.ResolveBankAccount()
	assert.False(t, ok)

	provider = &Provider{ProviderID: "prov_7"}
	_, ok = provider.ResolveBankAccount()
	assert.False(t, ok)

	// wrong type at an intermediate key must not panic
	provider = &Provider{
		ProviderID: "prov_8",
		Profile: map[string]interface{}{
			"bankDetails": "corrupted",
		},
	}
	_, ok = provider.ResolveBankAccount()
	assert.False(t, ok)
}

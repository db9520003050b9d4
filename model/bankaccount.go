package model

import (
	"strings"
	"time"
)

// Provider is a payee profile. The profile document accumulated several
// historical shapes for bank details, so payout resolution walks an ordered
// candidate-path table instead of assuming one layout.
type Provider struct {
	ID          int64                  `json:"-"`
	ProviderID  string                 `json:"provider_id"`
	DisplayName string                 `json:"display_name"`
	Profile     map[string]interface{} `json:"profile,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// BankAccount is the resolved payout destination for a provider.
type BankAccount struct {
	IBAN string `json:"iban"`
	BIC  string `json:"bic,omitempty"`
	Name string `json:"name"`
}

type bankFieldPaths struct {
	iban []string
	bic  []string
	name []string
}

// BankAccountCandidates lists every profile shape ever written by the
// platform, newest first. The first path yielding a non-empty IBAN wins.
var BankAccountCandidates = []bankFieldPaths{
	{
		iban: []string{"bankDetails", "iban"},
		bic:  []string{"bankDetails", "bic"},
		name: []string{"bankDetails", "accountHolder"},
	},
	{
		iban: []string{"payout", "iban"},
		bic:  []string{"payout", "bic"},
		name: []string{"payout", "accountName"},
	},
	{
		iban: []string{"companyProfile", "bankAccount", "iban"},
		bic:  []string{"companyProfile", "bankAccount", "bic"},
		name: []string{"companyProfile", "bankAccount", "holderName"},
	},
	{
		iban: []string{"iban"},
		bic:  []string{"bic"},
		name: []string{"accountHolderName"},
	},
}

// ResolveBankAccount walks the candidate paths over the provider's profile
// document. When no path carries an account-holder name, the provider's
// display name is used so the transfer still names a payee. Returns false
// when no shape yields an IBAN.
func (p *Provider) ResolveBankAccount() (BankAccount, bool) {
	for _, candidate := range BankAccountCandidates {
		iban := lookupString(p.Profile, candidate.iban)
		if iban == "" {
			continue
		}
		account := BankAccount{
			IBAN: strings.ToUpper(strings.ReplaceAll(iban, " ", "")),
			BIC:  lookupString(p.Profile, candidate.bic),
			Name: lookupString(p.Profile, candidate.name),
		}
		if account.Name == "" {
			account.Name = p.DisplayName
		}
		return account, true
	}
	return BankAccount{}, false
}

func lookupString(doc map[string]interface{}, path []string) string {
	current := doc
	for i, key := range path {
		value, ok := current[key]
		if !ok {
			return ""
		}
		if i == len(path)-1 {
			s, _ := value.(string)
			return strings.TrimSpace(s)
		}
		next, ok := value.(map[string]interface{})
		if !ok {
			return ""
		}
		current = next
	}
	return ""
}

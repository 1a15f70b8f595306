package portal

import "github.com/shopspring/decimal"

// AccountSummary is the body of the linked-accounts endpoint.
type AccountSummary struct {
	LinkedAccounts []LinkedAccount `json:"linkedAccounts"`
	Count          int             `json:"count"`
}

// LinkedAccount is one customer account on the portal login.
type LinkedAccount struct {
	CustomerAccountID string          `json:"customerAccountId"`
	CustomerNumber    string          `json:"customerNumber"`
	ServiceAddress    map[string]any  `json:"serviceAddress,omitempty"`
	Balance           *AccountBalance `json:"customerAccountBalance,omitempty"`
	Status            string          `json:"status"`
	LDC               string          `json:"ldc"`
}

// AccountBalance carries the money fields; each may be null on the wire.
type AccountBalance struct {
	BalanceAmount    decimal.NullDecimal `json:"balanceAmount"`
	DueDate          string              `json:"dueDate"`
	PastDueAmount    decimal.NullDecimal `json:"pastDueAmount"`
	CurrentAmountDue decimal.NullDecimal `json:"currentAmountDue"`
}

// Primary returns the first linked account, if any.
func (s AccountSummary) Primary() (LinkedAccount, bool) {
	if len(s.LinkedAccounts) == 0 {
		return LinkedAccount{}, false
	}
	return s.LinkedAccounts[0], true
}

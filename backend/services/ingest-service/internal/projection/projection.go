package projection

import (
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"gasledger/backend/services/ingest-service/internal/models"
	"gasledger/backend/services/ingest-service/internal/portal"
)

const currencyCode = money.USD

// Amount is a monetary value with its display form.
type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
	Display  string          `json:"display"`
}

// NewAmount formats d in the portal currency.
func NewAmount(d decimal.Decimal) *Amount {
	cur := money.GetCurrency(currencyCode)
	factor, _ := decimal.NewFromInt(10).PowInt32(int32(cur.Fraction))
	minor := d.Mul(factor).Round(0).IntPart()
	return &Amount{
		Value:    d,
		Currency: currencyCode,
		Display:  money.New(minor, currencyCode).Display(),
	}
}

// Values are the single-number readings shown directly on a dashboard.
// Absent readings are nil.
type Values struct {
	Provider    string           `json:"provider"`
	AsOf        time.Time        `json:"as_of"`
	LatestUsage *decimal.Decimal `json:"latest_usage_ccf,omitempty"`
	LatestBill  *Amount          `json:"latest_bill,omitempty"`
	Balance     *Amount          `json:"balance,omitempty"`
	PastDue     *Amount          `json:"past_due,omitempty"`
	CurrentDue  *Amount          `json:"current_due,omitempty"`
	DueDate     string           `json:"due_date,omitempty"`
}

var dueDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateOnly,
	"1/2/2006",
}

// FromSnapshot projects the newest usage row and the primary linked account.
func FromSnapshot(s models.Snapshot) Values {
	v := Values{Provider: s.Provider, AsOf: s.FetchedAt}

	if len(s.Usage) > 0 {
		newest := s.Usage[0]
		if units, err := portal.ParseQuantity(newest.Field(portal.ColumnUnitsUsed)); err == nil {
			v.LatestUsage = &units
		}
		v.LatestBill = latestBill(newest.Field(portal.ColumnBillAmount))
	}

	account, ok := s.Account.Primary()
	if !ok || account.Balance == nil {
		return v
	}
	bal := account.Balance
	if bal.BalanceAmount.Valid {
		v.Balance = NewAmount(bal.BalanceAmount.Decimal)
	}
	if bal.PastDueAmount.Valid {
		v.PastDue = NewAmount(bal.PastDueAmount.Decimal.Abs())
	}
	if bal.CurrentAmountDue.Valid {
		v.CurrentDue = NewAmount(bal.CurrentAmountDue.Decimal)
	}
	v.DueDate = normalizeDueDate(bal.DueDate)
	return v
}

func latestBill(raw string) *Amount {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "", "$", "$0.00":
		return nil
	}
	d, err := portal.ParseCurrency(raw)
	if err != nil {
		return nil
	}
	return NewAmount(d)
}

// normalizeDueDate renders known layouts as YYYY-MM-DD and passes anything else through.
func normalizeDueDate(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return raw
}

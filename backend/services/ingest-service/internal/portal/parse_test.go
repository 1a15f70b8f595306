package portal

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	cases := map[string]string{
		"$1,234.56": "1234.56",
		"$50.00":    "50",
		"  $0.99 ":  "0.99",
		"-$12.00":   "-12",
		"":          "0",
		"$":         "0",
	}
	for in, want := range cases {
		got, err := ParseCurrency(in)
		require.NoError(t, err, in)
		assert.True(t, decimal.RequireFromString(want).Equal(got), "%q: got %s", in, got)
	}

	_, err := ParseCurrency("twelve dollars")
	assert.Error(t, err)
}

func TestParsePercentage(t *testing.T) {
	got, err := ParsePercentage("20%")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(20).Equal(got))

	got, err = ParsePercentage("-3.5 %")
	require.NoError(t, err)
	assert.Equal(t, "-3.5", got.String())

	_, err = ParsePercentage("n/a")
	assert.Error(t, err)
}

func TestParseQuantity(t *testing.T) {
	got, err := ParseQuantity("1,024")
	require.NoError(t, err)
	assert.Equal(t, "1024", got.String())

	_, err = ParseQuantity("")
	assert.Error(t, err)
	_, err = ParseQuantity("abc")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	got, err := ParseDate("03/01/2025")
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	got, err = ParseDate(" 3/1/2025")
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
	assert.Equal(t, time.UTC, got.Location())

	_, err = ParseDate("2025-03-01")
	assert.Error(t, err)
	_, err = ParseDate("13/45/2025")
	assert.Error(t, err)
}

func TestRowLookup(t *testing.T) {
	spaced := Row{" Bill Amount": "$50.00"}
	plain := Row{"Bill Amount": "$50.00"}

	a, ok := spaced.Lookup(ColumnBillAmount)
	require.True(t, ok)
	b, ok := plain.Lookup(ColumnBillAmount)
	require.True(t, ok)
	assert.Equal(t, a, b)

	both := Row{"Bill Amount": "$1.00", " Bill Amount": "$2.00"}
	assert.Equal(t, "$1.00", both.Field(ColumnBillAmount))

	_, ok = plain.Lookup(ColumnUnitsUsed)
	assert.False(t, ok)
	assert.Empty(t, plain.Field(ColumnUnitsUsed))
}

func TestDecodeCSV(t *testing.T) {
	body := "\ufeffDate, Units Used, Bill Amount\n03/01/2025,10,\"$1,050.00\"\n02/01/2025,8\n"

	rows, err := DecodeCSV(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "03/01/2025", rows[0].Field(ColumnDate))
	assert.Equal(t, "10", rows[0].Field(ColumnUnitsUsed))
	assert.Equal(t, "$1,050.00", rows[0].Field(ColumnBillAmount))

	_, ok := rows[1].Lookup(ColumnBillAmount)
	assert.False(t, ok)
}

func TestDecodeCSV_Empty(t *testing.T) {
	rows, err := DecodeCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = DecodeCSV(strings.NewReader("Date,Units Used\n"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDecodeCSV_Malformed(t *testing.T) {
	_, err := DecodeCSV(strings.NewReader("Date,Units Used\n\"03/01/2025,10\n"))
	assert.Error(t, err)
}

func TestParseUsageRecords(t *testing.T) {
	rows := []Row{
		{"Date": "03/01/2025", " Type of Read": "Actual", " Avg Temp": "41", " Number of Days": "29", " Units Used": "10", " Yearly Usage": "12%", " Bill Amount": "$50.00", " Cost per Day": "$1.72"},
		{"Date": "02/01/2025", " Units Used": "abc", " Bill Amount": "$40.00"},
		{"Date": "01/01/2025", " Units Used": "7", " Bill Amount": "$35.00", " Avg Temp": "--"},
	}

	records, skipped := ParseUsageRecords(rows)
	assert.Equal(t, 1, skipped)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "Actual", first.ReadType)
	assert.Equal(t, "10", first.UnitsUsed.String())
	assert.Equal(t, "50", first.BillAmount.String())
	require.NotNil(t, first.YearlyUsage)
	assert.Equal(t, "12", first.YearlyUsage.String())
	require.NotNil(t, first.CostPerDay)
	assert.Equal(t, "1.72", first.CostPerDay.String())

	assert.Nil(t, records[1].AvgTemp)
	assert.Nil(t, records[1].Days)
}

func TestLookupProvider(t *testing.T) {
	p, err := LookupProvider(" ky ")
	require.NoError(t, err)
	assert.Equal(t, "KY", p.Code)
	assert.NotEmpty(t, p.BaseURL)

	_, err = LookupProvider("TX")
	assert.Error(t, err)
	assert.Equal(t, []string{"IN", "KY", "MD", "OH", "PA", "VA"}, ProviderCodes())
}

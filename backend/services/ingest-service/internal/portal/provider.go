package portal

import (
	"fmt"
	"sort"
	"strings"
)

// Endpoint paths shared by every provider deployment.
const (
	EndpointLogin          = "/login"
	EndpointUsageHistory   = "/UsageHistoryAllCsv/0"
	EndpointBillingHistory = "/BillingHistoryAllCsv"
	EndpointPaymentHistory = "/PaymentHistoryAllCsv"
	EndpointAccountSummary = "/api/LinkedAccounts/1.0"
)

// LoginSuccessMarker appears in the post-login redirect target (?dlp=LoginSuccess).
const LoginSuccessMarker = "LoginSuccess"

// Provider is one deployment of the portal. All providers share endpoint shapes and
// differ only by host and region code.
type Provider struct {
	Code    string
	Name    string
	BaseURL string
}

var providers = map[string]Provider{
	"OH": {Code: "OH", Name: "Columbia Gas of Ohio", BaseURL: "https://myaccount.columbiagasohio.com"},
	"KY": {Code: "KY", Name: "Columbia Gas of Kentucky", BaseURL: "https://myaccount.columbiagasofky.com"},
	"PA": {Code: "PA", Name: "Columbia Gas of Pennsylvania", BaseURL: "https://myaccount.columbiagasofpa.com"},
	"MD": {Code: "MD", Name: "Columbia Gas of Maryland", BaseURL: "https://myaccount.columbiagasofmd.com"},
	"VA": {Code: "VA", Name: "Columbia Gas of Virginia", BaseURL: "https://myaccount.columbiagasofva.com"},
	"IN": {Code: "IN", Name: "NIPSCO (Northern Indiana)", BaseURL: "https://myaccount.nipsco.com"},
}

// LookupProvider resolves a region code (case-insensitive).
func LookupProvider(code string) (Provider, error) {
	p, ok := providers[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Provider{}, fmt.Errorf("portal: unknown provider %q (known: %s)", code, strings.Join(ProviderCodes(), ", "))
	}
	return p, nil
}

// ProviderCodes lists known region codes in sorted order.
func ProviderCodes() []string {
	codes := make([]string, 0, len(providers))
	for code := range providers {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

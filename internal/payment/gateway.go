package payment

import "net/url"

// ReturnResult is the verified outcome of a gateway redirect back to us
type ReturnResult struct {
	OrderCode     string
	TransactionNo string
	BankCode      string
	Amount        float64
	ResponseCode  string
	Paid          bool
}

// Gateway verifies payment-gateway callbacks. The checkout flow itself never
// talks to the gateway; the platform issues the redirect URL and the gateway
// calls back here when the user returns from the payment page.
type Gateway interface {
	VerifyReturn(params url.Values) (*ReturnResult, error)
}

package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/modomart/checkoutbff/internal/config"
)

const (
	responseCodeSuccess      = "00"
	transactionStatusSuccess = "00"
)

type vnpayGateway struct {
	hashSecret string
	tmnCode    string
	logger     *zap.Logger
}

// NewVNPayGateway creates a VNPay return verifier
func NewVNPayGateway(cfg config.VNPayConfig, logger *zap.Logger) Gateway {
	if cfg.HashSecret == "" {
		logger.Warn("VNPay hash secret is empty")
	}
	return &vnpayGateway{
		hashSecret: cfg.HashSecret,
		tmnCode:    cfg.TmnCode,
		logger:     logger,
	}
}

// VerifyReturn checks the vnp_SecureHash over the return parameters and maps
// the response codes onto a paid/failed result
func (g *vnpayGateway) VerifyReturn(params url.Values) (*ReturnResult, error) {
	secureHash := params.Get("vnp_SecureHash")
	if secureHash == "" {
		return nil, fmt.Errorf("missing vnp_SecureHash")
	}

	expected := g.sign(params)
	if !hmac.Equal([]byte(strings.ToLower(secureHash)), []byte(expected)) {
		g.logger.Warn("VNPay signature mismatch",
			zap.String("txn_ref", params.Get("vnp_TxnRef")),
		)
		return nil, fmt.Errorf("invalid vnp_SecureHash")
	}

	result := &ReturnResult{
		OrderCode:     params.Get("vnp_TxnRef"),
		TransactionNo: params.Get("vnp_TransactionNo"),
		BankCode:      params.Get("vnp_BankCode"),
		ResponseCode:  params.Get("vnp_ResponseCode"),
	}

	// vnp_Amount carries the amount multiplied by 100
	if raw := params.Get("vnp_Amount"); raw != "" {
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vnp_Amount %q: %w", raw, err)
		}
		result.Amount = amount / 100
	}

	result.Paid = result.ResponseCode == responseCodeSuccess &&
		params.Get("vnp_TransactionStatus") == transactionStatusSuccess

	return result, nil
}

// sign computes the hex HMAC-SHA512 over the sorted, query-encoded vnp_
// parameters, excluding the hash fields themselves
func (g *vnpayGateway) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == "vnp_SecureHash" || key == "vnp_SecureHashType" {
			continue
		}
		if !strings.HasPrefix(key, "vnp_") {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, key := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(params.Get(key)))
	}

	mac := hmac.New(sha512.New, []byte(g.hashSecret))
	mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

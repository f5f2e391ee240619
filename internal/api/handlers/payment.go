package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/modomart/checkoutbff/internal/payment"
)

// HandleVNPayReturn handles GET /v1/payment/vnpay/return. VNPay redirects the
// user's browser here after the payment page; the signature proves the
// parameters were not tampered with in transit.
func HandleVNPayReturn(gateway payment.Gateway, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := gateway.VerifyReturn(c.Request.URL.Query())
		if err != nil {
			logger.Warn("VNPay return verification failed", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment return"})
			return
		}

		status := "failed"
		if result.Paid {
			status = "paid"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":         status,
			"order_code":     result.OrderCode,
			"transaction_no": result.TransactionNo,
			"bank_code":      result.BankCode,
			"amount":         result.Amount,
			"response_code":  result.ResponseCode,
		})
	}
}

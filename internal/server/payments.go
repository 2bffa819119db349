package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/mtandao/netbill/internal/payment/domain"
	"go.uber.org/zap"
)

// paymentCallback absorbs provider deliveries. The provider only needs to
// know the delivery landed: unmatched references are recorded and answered
// "OK" so the provider does not redeliver a payload we can never match.
// Transient failures get a 500 so the provider retries.
func (s *Server) paymentCallback(c *gin.Context) {
	var payload paymentdomain.CallbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.log.Warn("malformed payment callback", zap.Error(err))
		c.String(http.StatusBadRequest, "INVALID")
		return
	}

	if err := s.paymentSvc.HandleCallback(c.Request.Context(), payload); err != nil {
		if errors.Is(err, paymentdomain.ErrUnmatchedReference) {
			c.String(http.StatusOK, "OK")
			return
		}
		s.log.Error("payment callback processing failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "ERROR")
		return
	}
	c.String(http.StatusOK, "OK")
}

func (s *Server) listTransactions(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	txns, err := s.paymentRepo.ListTransactionsByReference(c.Request.Context(), s.db, reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

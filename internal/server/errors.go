package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/mtandao/netbill/internal/billing/domain"
	catalogdomain "github.com/mtandao/netbill/internal/catalog/domain"
	mikrotikdomain "github.com/mtandao/netbill/internal/mikrotik/domain"
	paymentdomain "github.com/mtandao/netbill/internal/payment/domain"
	subscriberdomain "github.com/mtandao/netbill/internal/subscriber/domain"
	subscriptiondomain "github.com/mtandao/netbill/internal/subscription/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, subscriptiondomain.ErrInvalidTransition),
		errors.Is(err, subscriptiondomain.ErrExpiryInPast):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "invalid_transition",
			Message: err.Error(),
		}
	case errors.Is(err, mikrotikdomain.ErrDeviceUnavailable),
		errors.Is(err, mikrotikdomain.ErrSecretNotFound),
		errors.Is(err, mikrotikdomain.ErrCommandFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "device_failure",
			Message: err.Error(),
		}
	case errors.Is(err, paymentdomain.ErrGatewayNotConfigured),
		errors.Is(err, paymentdomain.ErrSTKPushFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "payment_gateway_failure",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, subscriptiondomain.ErrInvalidSubscription),
		errors.Is(err, subscriptiondomain.ErrInvalidSubscriber),
		errors.Is(err, subscriptiondomain.ErrInvalidPackage),
		errors.Is(err, billingdomain.ErrInvalidAmount),
		errors.Is(err, billingdomain.ErrInvalidSubscriber):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, subscriberdomain.ErrSubscriberNotFound),
		errors.Is(err, subscriberdomain.ErrRouterNotFound),
		errors.Is(err, catalogdomain.ErrPackageNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/mtandao/netbill/internal/payment/domain"
	subscriptiondomain "github.com/mtandao/netbill/internal/subscription/domain"
	"github.com/mtandao/netbill/pkg/db/pagination"
	"go.uber.org/zap"
)

type createSubscriptionRequest struct {
	SubscriberID string `json:"subscriber_id" binding:"required"`
	PackageID    string `json:"package_id" binding:"required"`
}

type createSubscriptionResponse struct {
	Subscription subscriptiondomain.Subscription `json:"subscription"`
	Payment      paymentdomain.STKPushResponse   `json:"payment"`
}

// createSubscription is the self-service flow: record the selection, then
// prompt the subscriber's phone for payment. The PENDING subscription and
// its charge survive a failed push; a retry or a manual payment settles it.
func (s *Server) createSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subscriptionSvc.CreatePending(c.Request.Context(), subscriptiondomain.CreateRequest{
		SubscriberID: req.SubscriberID,
		PackageID:    req.PackageID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	subscriber, err := s.subscriberRepo.FindByID(c.Request.Context(), s.db, sub.SubscriberID)
	if err != nil || subscriber == nil {
		AbortWithError(c, ErrInternal)
		return
	}
	pkg, err := s.catalogRepo.FindByID(c.Request.Context(), s.db, sub.PackageID)
	if err != nil || pkg == nil {
		AbortWithError(c, ErrInternal)
		return
	}

	push, err := s.paymentSvc.InitiateSTKPush(c.Request.Context(), paymentdomain.STKPushRequest{
		SubscriptionID: sub.ID.String(),
		Amount:         pkg.Price,
		Phone:          subscriber.Phone,
		CustomerName:   subscriber.FullName,
	})
	if err != nil {
		s.log.Warn("stk push failed for new subscription",
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createSubscriptionResponse{Subscription: sub, Payment: push})
}

type adminCreateSubscriptionRequest struct {
	SubscriberID string `json:"subscriber_id" binding:"required"`
	PackageID    string `json:"package_id" binding:"required"`
	ActivateNow  bool   `json:"activate_now"`
}

func (s *Server) adminCreateSubscription(c *gin.Context) {
	var req adminCreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subscriptionSvc.CreateByAdmin(c.Request.Context(), subscriptiondomain.AdminCreateRequest{
		SubscriberID: req.SubscriberID,
		PackageID:    req.PackageID,
		ActivateNow:  req.ActivateNow,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (s *Server) activateSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

type upgradeSubscriptionRequest struct {
	NewPackageID string `json:"new_package_id" binding:"required"`
}

func (s *Server) upgradeSubscription(c *gin.Context) {
	var req upgradeSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subscriptionSvc.UpgradePackage(c.Request.Context(), subscriptiondomain.UpgradeRequest{
		SubscriptionID: c.Param("id"),
		NewPackageID:   req.NewPackageID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

type extendExpiryRequest struct {
	ExpiryAt time.Time `json:"expiry_at" binding:"required"`
}

func (s *Server) extendExpiry(c *gin.Context) {
	var req extendExpiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subscriptionSvc.ExtendExpiry(c.Request.Context(), c.Param("id"), req.ExpiryAt)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) getSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) listSubscriptions(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.subscriptionSvc.List(c.Request.Context(), subscriptiondomain.ListRequest{
		Status:       c.Query("status"),
		SubscriberID: c.Query("subscriber_id"),
		PageToken:    page.PageToken,
		PageSize:     page.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

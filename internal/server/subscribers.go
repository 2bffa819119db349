package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/mtandao/netbill/internal/subscription/domain"
)

func (s *Server) getSubscriberDetails(c *gin.Context) {
	details, err := s.subscriptionSvc.GetSubscriberDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (s *Server) getSubscriberLedger(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidSubscriber)
		return
	}

	entries, err := s.billingSvc.Entries(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	balance, err := s.billingSvc.Balance(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance, "entries": entries})
}

func (s *Server) listPackages(c *gin.Context) {
	packages, err := s.catalogRepo.List(c.Request.Context(), s.db)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": packages})
}

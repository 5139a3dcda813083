package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"vip-bot/internal/models"

	"github.com/gin-gonic/gin"
)

type AdminService interface {
	ListSubscribers(ctx context.Context) ([]models.Subscriber, error)
	GetSubscriber(ctx context.Context, userID int64) (*models.Subscriber, error)
	Expire(ctx context.Context, userID int64) error
}

// AdminHandler is the operator surface: inspect the subscriber table and
// force-expire a user without waiting for the next sweep.
type AdminHandler struct {
	svc AdminService
}

func NewAdminHandler(svc AdminService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func (h *AdminHandler) List(c *gin.Context) {
	subs, err := h.svc.ListSubscribers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscribers"})
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (h *AdminHandler) Get(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}
	sub, err := h.svc.GetSubscriber(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch subscriber"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscriber not found"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *AdminHandler) Expire(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}
	if err := h.svc.Expire(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to expire subscriber"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "expired", "user_id": userID})
}

// AdminAuthMiddleware guards the operator API with a static bearer token.
// With no token configured the API stays off.
func AdminAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin API disabled"})
			return
		}
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

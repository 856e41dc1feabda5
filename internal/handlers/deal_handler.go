package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/instoredealz-omar/instoreaws-sub000/internal/services"
)

// DealHandler handles vendor-side deal PIN management HTTP requests
type DealHandler struct {
	verificationService services.VerificationService
}

// NewDealHandler creates a new DealHandler
func NewDealHandler(verificationService services.VerificationService) *DealHandler {
	return &DealHandler{verificationService: verificationService}
}

// GetCurrentPin handles GET /vendor/deals/:id/pin
func (h *DealHandler) GetCurrentPin(c *gin.Context) {
	dealID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deal id"})
		return
	}
	vendorID, ok := subjectID(c)
	if !ok {
		return
	}

	pin, err := h.verificationService.CurrentPin(c, dealID, vendorID)
	if err != nil {
		respondError(c, err)
		return
	}

	// The displayed PIN rotates; intermediaries must never serve a stale one.
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")

	c.JSON(http.StatusOK, gin.H{
		"currentPin":       pin.CurrentPin,
		"nextRotationAt":   pin.NextRotationAt,
		"rotationInterval": pin.RotationInterval.String(),
	})
}

// SetPin handles POST /vendor/deals/:id/pin
func (h *DealHandler) SetPin(c *gin.Context) {
	var request struct {
		Pin string `json:"pin"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dealID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deal id"})
		return
	}
	vendorID, ok := subjectID(c)
	if !ok {
		return
	}

	pin, err := h.verificationService.SetDealPin(c, vendorID, dealID, request.Pin)
	if err != nil {
		respondError(c, err)
		return
	}

	// Shown once; only the salted digest is stored.
	c.JSON(http.StatusOK, gin.H{"pin": pin})
}

// GetAttempts handles GET /vendor/deals/:id/attempts
func (h *DealHandler) GetAttempts(c *gin.Context) {
	dealID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deal id"})
		return
	}
	vendorID, ok := subjectID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	attempts, err := h.verificationService.ListAttempts(c, vendorID, dealID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

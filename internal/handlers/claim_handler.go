package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/instoredealz-omar/instoreaws-sub000/internal/services"
)

// ClaimHandler handles customer-side claim HTTP requests
type ClaimHandler struct {
	claimService services.ClaimService
}

// NewClaimHandler creates a new ClaimHandler
func NewClaimHandler(claimService services.ClaimService) *ClaimHandler {
	return &ClaimHandler{claimService: claimService}
}

// ClaimDeal handles POST /claims
func (h *ClaimHandler) ClaimDeal(c *gin.Context) {
	var request struct {
		DealID string `json:"dealId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dealID, err := primitive.ObjectIDFromHex(request.DealID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deal id"})
		return
	}
	userID, ok := subjectID(c)
	if !ok {
		return
	}

	claim, err := h.claimService.ClaimDeal(c, dealID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, claim)
}

// VerifyPin handles POST /claims/verify-pin
func (h *ClaimHandler) VerifyPin(c *gin.Context) {
	var request struct {
		DealID string `json:"dealId" binding:"required"`
		Code   string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dealID, err := primitive.ObjectIDFromHex(request.DealID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deal id"})
		return
	}
	userID, ok := subjectID(c)
	if !ok {
		return
	}

	result, err := h.claimService.VerifyPin(c, dealID, userID, request.Code, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// UpdateBill handles PUT /claims/bill
func (h *ClaimHandler) UpdateBill(c *gin.Context) {
	var request struct {
		DealID        string  `json:"dealId" binding:"required"`
		BillAmount    float64 `json:"billAmount" binding:"required"`
		ActualSavings float64 `json:"actualSavings"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dealID, err := primitive.ObjectIDFromHex(request.DealID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deal id"})
		return
	}
	userID, ok := subjectID(c)
	if !ok {
		return
	}

	result, err := h.claimService.UpdateBillAmount(c, dealID, userID, request.BillAmount, request.ActualSavings)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"claim":           result.Claim,
		"actualSavings":   result.ActualSavings,
		"newTotalSavings": result.NewTotalSavings,
	})
}

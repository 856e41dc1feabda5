package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/instoredealz-omar/instoreaws-sub000/internal/models"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/services"
)

// VerificationHandler handles vendor-side verification HTTP requests
type VerificationHandler struct {
	verificationService services.VerificationService
}

// NewVerificationHandler creates a new VerificationHandler
func NewVerificationHandler(verificationService services.VerificationService) *VerificationHandler {
	return &VerificationHandler{verificationService: verificationService}
}

// VerifyCode handles POST /vendor/verify/code
func (h *VerificationHandler) VerifyCode(c *gin.Context) {
	var request struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vendorID, ok := subjectID(c)
	if !ok {
		return
	}

	verification, err := h.verificationService.VerifyClaimCode(c, vendorID, request.Code, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, verification)
}

// CompleteTransaction handles POST /vendor/transactions
func (h *VerificationHandler) CompleteTransaction(c *gin.Context) {
	var request struct {
		Code           string  `json:"code" binding:"required"`
		BillAmount     float64 `json:"billAmount" binding:"required"`
		ActualDiscount float64 `json:"actualDiscount"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vendorID, ok := subjectID(c)
	if !ok {
		return
	}

	transaction, err := h.verificationService.CompleteTransaction(c, vendorID, request.Code, request.BillAmount, request.ActualDiscount, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": transaction})
}

// VerifyByPhone handles POST /vendor/verify/phone
func (h *VerificationHandler) VerifyByPhone(c *gin.Context) {
	var request struct {
		Phone string `json:"phone" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vendorID, ok := subjectID(c)
	if !ok {
		return
	}

	candidates, err := h.verificationService.VerifyByPhone(c, vendorID, request.Phone)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

// VerifyByName handles POST /vendor/verify/name
func (h *VerificationHandler) VerifyByName(c *gin.Context) {
	var request struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vendorID, ok := subjectID(c)
	if !ok {
		return
	}

	candidates, err := h.verificationService.VerifyByName(c, vendorID, request.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

// VerifyByQR handles POST /vendor/verify/qr
func (h *VerificationHandler) VerifyByQR(c *gin.Context) {
	var request struct {
		Payload string `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vendorID, ok := subjectID(c)
	if !ok {
		return
	}

	verification, err := h.verificationService.VerifyByQR(c, vendorID, request.Payload, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, verification)
}

// ConfirmManual handles POST /vendor/verify/confirm
func (h *VerificationHandler) ConfirmManual(c *gin.Context) {
	var request struct {
		ClaimID string `json:"claimId" binding:"required"`
		Method  string `json:"method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claimID, err := primitive.ObjectIDFromHex(request.ClaimID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid claim id"})
		return
	}
	vendorID, ok := subjectID(c)
	if !ok {
		return
	}

	verification, err := h.verificationService.ConfirmManual(c, vendorID, claimID, models.VerificationMethod(request.Method), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, verification)
}

package handlers

import (
	"net/http"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/metrics"
	"bridge-backend/internal/models"
	"bridge-backend/internal/repository"
	"bridge-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ConversionHandler exposes the conversion lifecycle over HTTP.
type ConversionHandler struct {
	orchestrator    *services.ConversionOrchestrator
	conversionRepo  repository.ConversionRepository
	transactionRepo repository.TransactionRepository
	tokenPairRepo   repository.TokenPairRepository
}

func NewConversionHandler(
	orchestrator *services.ConversionOrchestrator,
	conversionRepo repository.ConversionRepository,
	transactionRepo repository.TransactionRepository,
	tokenPairRepo repository.TokenPairRepository,
) *ConversionHandler {
	return &ConversionHandler{
		orchestrator:    orchestrator,
		conversionRepo:  conversionRepo,
		transactionRepo: transactionRepo,
		tokenPairRepo:   tokenPairRepo,
	}
}

type createConversionRequest struct {
	TokenPairID      uint            `json:"token_pair_id" binding:"required"`
	FromAddress      string          `json:"from_address" binding:"required"`
	ToAddress        string          `json:"to_address" binding:"required"`
	Amount           decimal.Decimal `json:"amount" binding:"required"`
	Signature        string          `json:"signature" binding:"required"`
	SignedAtBlock    uint64          `json:"signed_at_block" binding:"required"`
	CardanoSignature string          `json:"cardano_signature"`
	CardanoPublicKey string          `json:"cardano_public_key"`
}

// Create handles POST /api/v1/conversions.
func (h *ConversionHandler) Create(c *gin.Context) {
	var req createConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "invalid request body: %v", err))
		return
	}

	result, err := h.orchestrator.CreateConversion(c.Request.Context(), &services.CreateConversionInput{
		TokenPairID:      req.TokenPairID,
		FromAddress:      req.FromAddress,
		ToAddress:        req.ToAddress,
		Amount:           req.Amount,
		Signature:        req.Signature,
		SignedAtBlock:    req.SignedAtBlock,
		CardanoSignature: req.CardanoSignature,
		CardanoPublicKey: req.CardanoPublicKey,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	metrics.ConversionsCreated.WithLabelValues(string(models.CreatedByDApp)).Inc()
	response := gin.H{"conversion": result.Conversion}
	if result.DepositAddress != "" {
		response["deposit_address"] = result.DepositAddress
	}
	if result.AuthorizationSignature != "" {
		response["authorization_signature"] = result.AuthorizationSignature
	}
	c.JSON(http.StatusCreated, response)
}

type submitTransactionRequest struct {
	TxHash string `json:"transaction_hash" binding:"required"`
}

// SubmitTransaction handles POST /api/v1/conversions/:id/transactions.
func (h *ConversionHandler) SubmitTransaction(c *gin.Context) {
	var req submitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "invalid request body: %v", err))
		return
	}

	if err := h.orchestrator.SubmitTransactionHash(c.Request.Context(), c.Param("id"), req.TxHash); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type claimConversionRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	FromAddress string          `json:"from_address" binding:"required"`
	ToAddress   string          `json:"to_address" binding:"required"`
	Signature   string          `json:"signature" binding:"required"`
}

// Claim handles POST /api/v1/conversions/:id/claim.
func (h *ConversionHandler) Claim(c *gin.Context) {
	var req claimConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "invalid request body: %v", err))
		return
	}

	claimSignature, err := h.orchestrator.ClaimConversion(c.Request.Context(), &services.ClaimConversionInput{
		ConversionID: c.Param("id"),
		Amount:       req.Amount,
		FromAddress:  req.FromAddress,
		ToAddress:    req.ToAddress,
		Signature:    req.Signature,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claim_signature": claimSignature})
}

// Get handles GET /api/v1/conversions/:id.
func (h *ConversionHandler) Get(c *gin.Context) {
	conversion, err := h.conversionRepo.GetByConversionID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	transactions, err := h.transactionRepo.ListByConversion(c.Request.Context(), conversion.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	visible := make([]*models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx.Visibility == models.VisibilityExternal {
			visible = append(visible, tx)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"conversion":   conversion,
		"transactions": visible,
	})
}

// ListTokenPairs handles GET /api/v1/token-pairs.
func (h *ConversionHandler) ListTokenPairs(c *gin.Context) {
	pairs, err := h.tokenPairRepo.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token_pairs": pairs})
}

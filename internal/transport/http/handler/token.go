package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ErlanBelekov/token-ledger/internal/domain"
	"github.com/ErlanBelekov/token-ledger/internal/usecase"
	"github.com/gin-gonic/gin"
)

type TokenService interface {
	CreateToken(ctx context.Context, input usecase.CreateTokenInput) (domain.Result, error)
	UseToken(ctx context.Context, input usecase.UseTokenInput) (domain.Result, error)
	GetToken(ctx context.Context, userID int64, tokenID string) (*domain.Token, error)
}

type TokenHandler struct {
	tokens TokenService
	logger *slog.Logger
}

func NewTokenHandler(tokens TokenService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{tokens: tokens, logger: logger.With("component", "token_handler")}
}

type createTokenRequest struct {
	UserID     *int64    `json:"user_id"     binding:"required"`
	ExpiryDate time.Time `json:"expiry_date" binding:"required"`
	TxnKey     string    `json:"txn_key"     binding:"required,max=255"`
	UsageCount int       `json:"usage_count" binding:"required,min=1"`
}

type useTokenRequest struct {
	UserID  *int64 `json:"user_id"  binding:"required"`
	TokenID string `json:"token_id" binding:"required,max=255"`
	TxnKey  string `json:"txn_key"  binding:"required,max=255"`
}

type tokenResponse struct {
	UserID          int64     `json:"user_id"`
	TokenID         string    `json:"token_id"`
	RemainingUsages int64     `json:"remaining_usages"`
	ExpiryDate      time.Time `json:"expiry_date"`
	CreateDate      time.Time `json:"create_date"`
}

type resultResponse struct {
	Status  domain.Status  `json:"status"`
	Outcome domain.Outcome `json:"outcome"`
	Message string         `json:"message"`
	Token   *tokenResponse `json:"token,omitempty"`
}

func (h *TokenHandler) Create(ctx *gin.Context) {
	var req createTokenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.tokens.CreateToken(ctx.Request.Context(), usecase.CreateTokenInput{
		UserID:     *req.UserID,
		ExpiryDate: req.ExpiryDate,
		TxnKey:     req.TxnKey,
		UsageCount: req.UsageCount,
	})
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "create token", "user_id", *req.UserID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.JSON(statusFor(res, http.StatusCreated), toResultResponse(res))
}

func (h *TokenHandler) Use(ctx *gin.Context) {
	var req useTokenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.tokens.UseToken(ctx.Request.Context(), usecase.UseTokenInput{
		UserID:  *req.UserID,
		TokenID: req.TokenID,
		TxnKey:  req.TxnKey,
	})
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "use token", "user_id", *req.UserID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.JSON(statusFor(res, http.StatusOK), toResultResponse(res))
}

func (h *TokenHandler) Get(ctx *gin.Context) {
	userID, err := strconv.ParseInt(ctx.Param("user_id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidUserID})
		return
	}
	tokenID := ctx.Param("token_id")

	tok, err := h.tokens.GetToken(ctx.Request.Context(), userID, tokenID)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errTokenNotFound})
			return
		}
		h.logger.ErrorContext(ctx.Request.Context(), "get token", "user_id", userID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.JSON(http.StatusOK, toTokenResponse(tok))
}

// statusFor maps a rejection to its HTTP status; ok is used for success.
func statusFor(res domain.Result, ok int) int {
	switch res.Outcome {
	case domain.OutcomeOK:
		return ok
	case domain.OutcomeTxnAlreadyHappened:
		return http.StatusConflict
	case domain.OutcomeBadTransactionFormat:
		return http.StatusBadRequest
	case domain.OutcomeUserDoesNotExist, domain.OutcomeTokenDoesNotExist:
		return http.StatusNotFound
	case domain.OutcomeTokenUsed, domain.OutcomeTokenExpired:
		return http.StatusGone
	case domain.OutcomeUserHasTooManyErrors:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func toResultResponse(res domain.Result) resultResponse {
	out := resultResponse{Status: res.Status, Outcome: res.Outcome, Message: res.Message}
	if res.Token != nil {
		out.Token = toTokenResponse(res.Token)
	}
	return out
}

func toTokenResponse(t *domain.Token) *tokenResponse {
	return &tokenResponse{
		UserID:          t.UserID,
		TokenID:         t.TokenID,
		RemainingUsages: t.RemainingUsages,
		ExpiryDate:      t.ExpiryDate,
		CreateDate:      t.CreateDate,
	}
}

package wallet

import (
	"context"
	"errors"
	"net/http"

	"allowance/internal/api"
	"allowance/internal/auth"
	"allowance/internal/budget"
	"allowance/internal/logger"

	"github.com/gin-gonic/gin"
)

// AccessChecker decides whether actor may read a student's wallet.
type AccessChecker interface {
	CanView(ctx context.Context, actor auth.Actor, studentID int) (bool, error)
}

type Handler struct {
	service Service
	access  AccessChecker
}

func NewHandler(service Service, access AccessChecker) *Handler {
	return &Handler{service: service, access: access}
}

type SettingsRequest struct {
	Currency   *string `json:"currency" binding:"omitempty,len=3"`
	DailyLimit *string `json:"daily_limit"`
}

type DepositRequestBody struct {
	StudentID     int     `json:"student_id" binding:"required,gt=0"`
	Amount        string  `json:"amount" binding:"required"`
	Description   string  `json:"description" binding:"max=255"`
	ExternalRef   string  `json:"external_ref" binding:"max=80"`
	BillsAmount   *string `json:"bills_amount"`
	SavingsAmount *string `json:"savings_amount"`
	DailyAmount   *string `json:"daily_amount"`
}

type ExpenseRequestBody struct {
	Amount      string `json:"amount" binding:"required"`
	BucketType  string `json:"bucket_type" binding:"omitempty,oneof=BILLS SAVINGS DAILY"`
	Description string `json:"description" binding:"max=255"`
}

// GetMyWallet godoc
// @Summary      Get my wallet
// @Description  Returns the caller's wallet with its BILLS, SAVINGS and DAILY balances, creating it on first use.
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} Wallet
// @Router       /wallet/me [get]
func (h *Handler) GetMyWallet(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	w, err := h.service.GetOrCreateWallet(c.Request.Context(), studentID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// UpdateMySettings godoc
// @Summary      Update my wallet settings
// @Description  daily_limit 0 means no limit.
// @Tags         wallet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body SettingsRequest true "Settings"
// @Success      200 {object} Wallet
// @Failure      400 {object} api.ErrorResponse
// @Router       /wallet/me/settings [patch]
func (h *Handler) UpdateMySettings(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var req SettingsRequest
	if !api.BindJSON(c, &req) {
		return
	}
	limit, ok := api.OptionalAmount(c, "daily_limit", req.DailyLimit)
	if !ok {
		return
	}

	w, err := h.service.UpdateSettings(c.Request.Context(), studentID, SettingsPatch{
		Currency:   req.Currency,
		DailyLimit: limit,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// ListMyTransactions godoc
// @Summary      List my ledger entries, newest first
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Param        limit  query int false "Page size (max 200)"
// @Param        offset query int false "Offset"
// @Success      200 {array} Transaction
// @Router       /wallet/me/transactions [get]
func (h *Handler) ListMyTransactions(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	limit, offset := api.Pagination(c)
	txns, err := h.service.ListTransactions(c.Request.Context(), studentID, limit, offset)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txns)
}

// GetMyDailyStatus godoc
// @Summary      Today's DAILY spending against my limit
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} DailyStatus
// @Router       /wallet/me/today [get]
func (h *Handler) GetMyDailyStatus(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	st, err := h.service.DailyStatus(c.Request.Context(), studentID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// RecordMyExpense godoc
// @Summary      Debit one of my buckets
// @Description  The bucket must cover the amount. DAILY debits also respect the daily limit.
// @Tags         wallet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body ExpenseRequestBody true "Expense"
// @Success      201 {object} ExpenseResult
// @Failure      402 {object} api.ErrorResponse
// @Failure      422 {object} api.ErrorResponse
// @Router       /wallet/me/expenses [post]
func (h *Handler) RecordMyExpense(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var req ExpenseRequestBody
	if !api.BindJSON(c, &req) {
		return
	}
	amount, ok := api.Amount(c, "amount", req.Amount)
	if !ok {
		return
	}

	res, err := h.service.RecordExpense(c.Request.Context(), ExpenseRequest{
		StudentID:   studentID,
		Amount:      amount,
		Bucket:      BucketType(req.BucketType),
		Description: req.Description,
	}, nil)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GetStudentWallet godoc
// @Summary      Get a linked student's wallet
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Param        studentID path int true "Student ID"
// @Success      200 {object} Wallet
// @Failure      403 {object} api.ErrorResponse
// @Router       /wallet/students/{studentID} [get]
func (h *Handler) GetStudentWallet(c *gin.Context) {
	studentID, ok := h.viewableStudent(c)
	if !ok {
		return
	}

	w, err := h.service.StudentWallet(c.Request.Context(), studentID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// ListStudentTransactions godoc
// @Summary      List a linked student's ledger entries
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Param        studentID path int true "Student ID"
// @Success      200 {array} Transaction
// @Failure      403 {object} api.ErrorResponse
// @Router       /wallet/students/{studentID}/transactions [get]
func (h *Handler) ListStudentTransactions(c *gin.Context) {
	studentID, ok := h.viewableStudent(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.service.StudentWallet(ctx, studentID); err != nil {
		RespondError(c, err)
		return
	}

	limit, offset := api.Pagination(c)
	txns, err := h.service.ListTransactions(ctx, studentID, limit, offset)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txns)
}

// Deposit godoc
// @Summary      Deposit to a linked student
// @Description  Without sub-amounts the deposit is split by the student's active plan (BILLS, then SAVINGS, then DAILY), or goes entirely to DAILY when there is none.
// @Description  With any of bills_amount, savings_amount or daily_amount the caller's split is used and must sum exactly to amount.
// @Description  external_ref is suffixed per bucket (-BILLS, -SAVINGS, -DAILY).
// @Tags         wallet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body DepositRequestBody true "Deposit"
// @Success      201 {object} DepositResult
// @Failure      403 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      422 {object} api.ErrorResponse
// @Router       /wallet/deposits [post]
func (h *Handler) Deposit(c *gin.Context) {
	actor, ok := auth.GetActor(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var body DepositRequestBody
	if !api.BindJSON(c, &body) {
		return
	}
	amount, ok := api.Amount(c, "amount", body.Amount)
	if !ok {
		return
	}
	bills, ok := api.OptionalAmount(c, "bills_amount", body.BillsAmount)
	if !ok {
		return
	}
	savings, ok := api.OptionalAmount(c, "savings_amount", body.SavingsAmount)
	if !ok {
		return
	}
	daily, ok := api.OptionalAmount(c, "daily_amount", body.DailyAmount)
	if !ok {
		return
	}

	req := DepositRequest{
		Actor:       actor,
		StudentID:   body.StudentID,
		Amount:      amount,
		Description: body.Description,
		ExternalRef: body.ExternalRef,
	}

	var res *DepositResult
	var err error
	if bills != nil || savings != nil || daily != nil {
		res, err = h.service.DepositWithSplit(c.Request.Context(), SplitDepositRequest{
			DepositRequest: req,
			Bills:          bills,
			Savings:        savings,
			Daily:          daily,
		})
	} else {
		res, err = h.service.Deposit(c.Request.Context(), req)
	}
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) viewableStudent(c *gin.Context) (int, bool) {
	actor, ok := auth.GetActor(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return 0, false
	}
	studentID, ok := api.IntParam(c, "studentID")
	if !ok {
		return 0, false
	}

	allowed, err := h.access.CanView(c.Request.Context(), actor, studentID)
	if err != nil {
		logger.WithError(err).Error("access check failed")
		api.Error(c, http.StatusInternalServerError, "failed to check access")
		return 0, false
	}
	if !allowed {
		api.Error(c, http.StatusForbidden, "parent not linked to this student")
		return 0, false
	}
	return studentID, true
}

// RespondError writes the status for a wallet error. Other packages that
// drive the wallet workflows reuse it.
func RespondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		api.Error(c, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, ErrDailyLimitExceeded), errors.Is(err, ErrSplitMismatch),
		errors.Is(err, budget.ErrInvalidAllocationInput):
		api.Error(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidBucket), errors.Is(err, ErrInvalidSettings):
		api.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotAuthorized):
		api.Error(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrWalletNotFound), errors.Is(err, ErrStudentNotFound):
		api.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateReference):
		api.Error(c, http.StatusConflict, err.Error())
	default:
		logger.WithError(err).Error("wallet request failed")
		api.Error(c, http.StatusInternalServerError, "internal error")
	}
}

package budget

import (
	"context"
	"errors"
	"net/http"

	"allowance/internal/api"
	"allowance/internal/auth"
	"allowance/internal/logger"

	"github.com/gin-gonic/gin"
)

// AccessChecker decides whether actor may read a student's data.
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

type CreatePlanRequest struct {
	Name           string  `json:"name" binding:"required,max=120"`
	Currency       string  `json:"currency" binding:"omitempty,len=3"`
	DailyLimit     *string `json:"daily_limit"`
	SavingsMode    string  `json:"savings_mode" binding:"omitempty,oneof=NONE AMOUNT PERCENT"`
	SavingsAmount  *string `json:"savings_amount"`
	SavingsPercent *string `json:"savings_percent"`
}

type UpdatePlanRequest struct {
	Name           *string `json:"name" binding:"omitempty,max=120"`
	Currency       *string `json:"currency" binding:"omitempty,len=3"`
	DailyLimit     *string `json:"daily_limit"`
	SavingsMode    *string `json:"savings_mode" binding:"omitempty,oneof=NONE AMOUNT PERCENT"`
	SavingsAmount  *string `json:"savings_amount"`
	SavingsPercent *string `json:"savings_percent"`
}

type BillRequest struct {
	Title       string `json:"title" binding:"required,max=120"`
	Amount      string `json:"amount" binding:"required"`
	DueDay      *int   `json:"due_day" binding:"omitempty,gte=1,lte=31"`
	Priority    *int   `json:"priority" binding:"omitempty,gte=0"`
	IsMandatory *bool  `json:"is_mandatory"`
}

type UpdateBillRequest struct {
	Title       *string `json:"title" binding:"omitempty,max=120"`
	Amount      *string `json:"amount"`
	DueDay      *int    `json:"due_day" binding:"omitempty,gte=0,lte=31"`
	Priority    *int    `json:"priority" binding:"omitempty,gte=0"`
	IsMandatory *bool   `json:"is_mandatory"`
}

type PlanDetail struct {
	*Plan
	TotalBills string `json:"total_bills"`
}

func detail(p *Plan) PlanDetail {
	return PlanDetail{Plan: p, TotalBills: p.TotalBills().StringFixed(2)}
}

// ListMyPlans godoc
// @Summary      List my budget plans
// @Tags         plans
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} Plan
// @Router       /plans/me [get]
func (h *Handler) ListMyPlans(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	plans, err := h.service.ListPlans(c.Request.Context(), studentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

// CreatePlan godoc
// @Summary      Create a budget plan
// @Description  Plans are created INACTIVE; activate one explicitly.
// @Tags         plans
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body CreatePlanRequest true "Plan"
// @Success      201 {object} Plan
// @Failure      400 {object} api.ErrorResponse
// @Router       /plans [post]
func (h *Handler) CreatePlan(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var req CreatePlanRequest
	if !api.BindJSON(c, &req) {
		return
	}

	in := PlanInput{
		Name:        req.Name,
		Currency:    req.Currency,
		SavingsMode: SavingsMode(req.SavingsMode),
	}
	if v, ok := api.OptionalAmount(c, "daily_limit", req.DailyLimit); !ok {
		return
	} else if v != nil {
		in.DailyLimit = *v
	}
	if v, ok := api.OptionalAmount(c, "savings_amount", req.SavingsAmount); !ok {
		return
	} else if v != nil {
		in.SavingsAmount = *v
	}
	if v, ok := api.OptionalAmount(c, "savings_percent", req.SavingsPercent); !ok {
		return
	} else if v != nil {
		in.SavingsPercent = *v
	}

	plan, err := h.service.CreatePlan(c.Request.Context(), studentID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

// GetActivePlan godoc
// @Summary      Get my active plan with its bills
// @Tags         plans
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} PlanDetail
// @Failure      404 {object} api.ErrorResponse
// @Router       /plans/active [get]
func (h *Handler) GetActivePlan(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	plan, err := h.service.ActivePlan(c.Request.Context(), studentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail(plan))
}

// PreviewAllocation godoc
// @Summary      Preview how a deposit would be split by my active plan
// @Tags         plans
// @Security     BearerAuth
// @Produce      json
// @Param        amount query string true "Deposit amount"
// @Success      200 {object} Allocation
// @Router       /plans/active/preview [get]
func (h *Handler) PreviewAllocation(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	amount, ok := api.Amount(c, "amount", c.Query("amount"))
	if !ok {
		return
	}

	a, err := h.service.PreviewAllocation(c.Request.Context(), studentID, amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) GetPlan(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}
	planID, ok := api.IntParam(c, "planID")
	if !ok {
		return
	}

	plan, err := h.service.GetPlan(c.Request.Context(), studentID, planID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail(plan))
}

func (h *Handler) UpdatePlan(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}
	planID, ok := api.IntParam(c, "planID")
	if !ok {
		return
	}

	var req UpdatePlanRequest
	if !api.BindJSON(c, &req) {
		return
	}

	patch := PlanPatch{Name: req.Name, Currency: req.Currency}
	if req.SavingsMode != nil {
		mode := SavingsMode(*req.SavingsMode)
		patch.SavingsMode = &mode
	}
	if patch.DailyLimit, ok = api.OptionalAmount(c, "daily_limit", req.DailyLimit); !ok {
		return
	}
	if patch.SavingsAmount, ok = api.OptionalAmount(c, "savings_amount", req.SavingsAmount); !ok {
		return
	}
	if patch.SavingsPercent, ok = api.OptionalAmount(c, "savings_percent", req.SavingsPercent); !ok {
		return
	}

	plan, err := h.service.UpdatePlan(c.Request.Context(), studentID, planID, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail(plan))
}

// ActivatePlan godoc
// @Summary      Activate a plan
// @Description  Activates the plan and deactivates every other plan of the student.
// @Tags         plans
// @Security     BearerAuth
// @Produce      json
// @Param        planID path int true "Plan ID"
// @Success      200 {object} map[string]int
// @Failure      404 {object} api.ErrorResponse
// @Router       /plans/{planID}/activate [post]
func (h *Handler) ActivatePlan(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}
	planID, ok := api.IntParam(c, "planID")
	if !ok {
		return
	}

	id, err := h.service.ActivatePlan(c.Request.Context(), studentID, planID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_plan_id": id})
}

func (h *Handler) ListBills(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}
	planID, ok := api.IntParam(c, "planID")
	if !ok {
		return
	}

	bills, err := h.service.ListBills(c.Request.Context(), studentID, planID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bills)
}

// AddBill godoc
// @Summary      Add a fixed bill to a plan
// @Tags         plans
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        planID  path int         true "Plan ID"
// @Param        request body BillRequest true "Bill"
// @Success      201 {object} Bill
// @Failure      400 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /plans/{planID}/bills [post]
func (h *Handler) AddBill(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}
	planID, ok := api.IntParam(c, "planID")
	if !ok {
		return
	}

	var req BillRequest
	if !api.BindJSON(c, &req) {
		return
	}
	amount, ok := api.Amount(c, "amount", req.Amount)
	if !ok {
		return
	}

	bill, err := h.service.AddBill(c.Request.Context(), studentID, planID, BillInput{
		Title:       req.Title,
		Amount:      amount,
		DueDay:      req.DueDay,
		Priority:    req.Priority,
		IsMandatory: req.IsMandatory,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bill)
}

// UpdateBill accepts due_day 0 to clear the due day.
func (h *Handler) UpdateBill(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}
	billID, ok := api.IntParam(c, "billID")
	if !ok {
		return
	}

	var req UpdateBillRequest
	if !api.BindJSON(c, &req) {
		return
	}

	patch := BillPatch{
		Title:       req.Title,
		Priority:    req.Priority,
		IsMandatory: req.IsMandatory,
	}
	if req.DueDay != nil && *req.DueDay == 0 {
		patch.ClearDueDay = true
	} else {
		patch.DueDay = req.DueDay
	}
	if patch.Amount, ok = api.OptionalAmount(c, "amount", req.Amount); !ok {
		return
	}

	bill, err := h.service.UpdateBill(c.Request.Context(), studentID, billID, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

func (h *Handler) DeleteBill(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}
	billID, ok := api.IntParam(c, "billID")
	if !ok {
		return
	}

	if err := h.service.DeleteBill(c.Request.Context(), studentID, billID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetStudentActivePlan godoc
// @Summary      Get the active plan of a linked student
// @Tags         plans
// @Security     BearerAuth
// @Produce      json
// @Param        studentID path int true "Student ID"
// @Success      200 {object} PlanDetail
// @Failure      403 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /students/{studentID}/plans/active [get]
func (h *Handler) GetStudentActivePlan(c *gin.Context) {
	actor, ok := auth.GetActor(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}
	studentID, ok := api.IntParam(c, "studentID")
	if !ok {
		return
	}

	allowed, err := h.access.CanView(c.Request.Context(), actor, studentID)
	if err != nil {
		logger.WithError(err).Error("access check failed")
		api.Error(c, http.StatusInternalServerError, "failed to check access")
		return
	}
	if !allowed {
		api.Error(c, http.StatusForbidden, "parent not linked to this student")
		return
	}

	plan, err := h.service.ActivePlan(c.Request.Context(), studentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail(plan))
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrPlanNotFound):
		api.Error(c, http.StatusNotFound, "plan not found")
	case errors.Is(err, ErrBillNotFound):
		api.Error(c, http.StatusNotFound, "bill not found")
	case errors.Is(err, ErrInvalidPlan), errors.Is(err, ErrInvalidBill):
		api.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidAllocationInput):
		api.Error(c, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.WithError(err).Error("budget request failed")
		api.Error(c, http.StatusInternalServerError, "internal error")
	}
}

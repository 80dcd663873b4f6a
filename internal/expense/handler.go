package expense

import (
	"context"
	"errors"
	"net/http"
	"time"

	"allowance/internal/api"
	"allowance/internal/auth"
	"allowance/internal/logger"
	"allowance/internal/wallet"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

type AccessChecker interface {
	CanView(ctx context.Context, actor auth.Actor, studentID int) (bool, error)
}

type Handler struct {
	service Service
	access  AccessChecker
	loc     *time.Location
}

func NewHandler(service Service, access AccessChecker, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{service: service, access: access, loc: loc}
}

type CreateExpenseRequest struct {
	Amount       string     `json:"amount" binding:"required"`
	BucketType   string     `json:"bucket_type" binding:"omitempty,oneof=BILLS SAVINGS DAILY"`
	CategoryID   *int       `json:"category_id" binding:"omitempty,gt=0"`
	CategorySlug string     `json:"category_slug" binding:"max=60"`
	Note         string     `json:"note" binding:"max=255"`
	OccurredAt   *time.Time `json:"occurred_at"`
}

type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required,max=60"`
	Slug string `json:"slug" binding:"max=60"`
}

// CreateExpense godoc
// @Summary      Record an expense
// @Description  Debits the bucket (DAILY by default) and files the expense under a category.
// @Description  category_id wins over category_slug; with neither the expense goes to "other".
// @Tags         expenses
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body CreateExpenseRequest true "Expense"
// @Success      201 {object} CreateResult
// @Failure      402 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      422 {object} api.ErrorResponse
// @Router       /expenses [post]
func (h *Handler) CreateExpense(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var req CreateExpenseRequest
	if !api.BindJSON(c, &req) {
		return
	}
	amount, ok := api.Amount(c, "amount", req.Amount)
	if !ok {
		return
	}

	res, err := h.service.Create(c.Request.Context(), CreateRequest{
		StudentID:    studentID,
		Amount:       amount,
		Bucket:       wallet.BucketType(req.BucketType),
		CategoryID:   req.CategoryID,
		CategorySlug: req.CategorySlug,
		Note:         req.Note,
		OccurredAt:   req.OccurredAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListMyExpenses godoc
// @Summary      List my expenses, newest first
// @Tags         expenses
// @Security     BearerAuth
// @Produce      json
// @Param        from     query string false "First day (YYYY-MM-DD)"
// @Param        to       query string false "Last day (YYYY-MM-DD), inclusive"
// @Param        category query string false "Category slug"
// @Param        limit    query int    false "Page size (max 200)"
// @Param        offset   query int    false "Offset"
// @Success      200 {array} Expense
// @Router       /expenses/me [get]
func (h *Handler) ListMyExpenses(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}
	h.list(c, studentID)
}

// GetMySummary godoc
// @Summary      Spending totals for today, this week and this month
// @Tags         expenses
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} Summary
// @Router       /expenses/me/summary [get]
func (h *Handler) GetMySummary(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}
	h.summary(c, studentID)
}

// ListStudentExpenses godoc
// @Summary      List a linked student's expenses
// @Tags         expenses
// @Security     BearerAuth
// @Produce      json
// @Param        studentID path int true "Student ID"
// @Success      200 {array} Expense
// @Failure      403 {object} api.ErrorResponse
// @Router       /expenses/students/{studentID} [get]
func (h *Handler) ListStudentExpenses(c *gin.Context) {
	studentID, ok := h.viewableStudent(c)
	if !ok {
		return
	}
	h.list(c, studentID)
}

// GetStudentSummary godoc
// @Summary      A linked student's spending summary
// @Tags         expenses
// @Security     BearerAuth
// @Produce      json
// @Param        studentID path int true "Student ID"
// @Success      200 {object} Summary
// @Failure      403 {object} api.ErrorResponse
// @Router       /expenses/students/{studentID}/summary [get]
func (h *Handler) GetStudentSummary(c *gin.Context) {
	studentID, ok := h.viewableStudent(c)
	if !ok {
		return
	}
	h.summary(c, studentID)
}

// ListCategories godoc
// @Summary      List default categories and my own
// @Tags         expenses
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} Category
// @Router       /expenses/categories [get]
func (h *Handler) ListCategories(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	categories, err := h.service.Categories(c.Request.Context(), studentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// CreateCategory godoc
// @Summary      Create a personal category
// @Description  The slug defaults to the slugified name.
// @Tags         expenses
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body CreateCategoryRequest true "Category"
// @Success      201 {object} Category
// @Failure      409 {object} api.ErrorResponse
// @Router       /expenses/categories [post]
func (h *Handler) CreateCategory(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var req CreateCategoryRequest
	if !api.BindJSON(c, &req) {
		return
	}

	cat, err := h.service.CreateCategory(c.Request.Context(), studentID, req.Name, req.Slug)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (h *Handler) list(c *gin.Context, studentID int) {
	from, ok := h.dateQuery(c, "from")
	if !ok {
		return
	}
	to, ok := h.dateQuery(c, "to")
	if !ok {
		return
	}
	if to != nil {
		end := to.AddDate(0, 0, 1)
		to = &end
	}

	limit, offset := api.Pagination(c)
	expenses, err := h.service.List(c.Request.Context(), studentID, Filter{
		From:         from,
		To:           to,
		CategorySlug: c.Query("category"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expenses)
}

func (h *Handler) summary(c *gin.Context, studentID int) {
	sum, err := h.service.Summary(c.Request.Context(), studentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) dateQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.ParseInLocation(dateLayout, raw, h.loc)
	if err != nil {
		api.Error(c, http.StatusBadRequest, "invalid "+name+": expected YYYY-MM-DD")
		return nil, false
	}
	return &t, true
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

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrCategoryNotFound):
		api.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidCategory), errors.Is(err, ErrInvalidFilter):
		api.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrCategoryExists):
		api.Error(c, http.StatusConflict, err.Error())
	default:
		wallet.RespondError(c, err)
	}
}

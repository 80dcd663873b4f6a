package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"allowance/internal/api"
	"allowance/internal/auth"
	"allowance/internal/logger"
	"allowance/internal/user"
	"allowance/internal/wallet"

	"github.com/gin-gonic/gin"
)

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

// GetStudentDashboard godoc
// @Summary      My balances, spending, projection and alerts
// @Description  from/to only narrow the top categories; the other figures cover today and the current month.
// @Tags         dashboard
// @Security     BearerAuth
// @Produce      json
// @Param        from query string false "First day (YYYY-MM-DD)"
// @Param        to   query string false "Last day (YYYY-MM-DD), inclusive"
// @Success      200 {object} StudentDashboard
// @Failure      400 {object} api.ErrorResponse
// @Router       /dashboard/student [get]
func (h *Handler) GetStudentDashboard(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}
	r, ok := h.rangeQuery(c)
	if !ok {
		return
	}

	dash, err := h.service.Student(c.Request.Context(), studentID, r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

// GetParentOverview godoc
// @Summary      What I sent this month and how each linked student is doing
// @Tags         dashboard
// @Security     BearerAuth
// @Produce      json
// @Param        from query string false "First day (YYYY-MM-DD)"
// @Param        to   query string false "Last day (YYYY-MM-DD), inclusive"
// @Success      200 {object} ParentOverview
// @Router       /dashboard/parent/overview [get]
func (h *Handler) GetParentOverview(c *gin.Context) {
	parentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}
	r, ok := h.rangeQuery(c)
	if !ok {
		return
	}

	overview, err := h.service.ParentOverview(c.Request.Context(), parentID, r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// GetParentStudentDashboard godoc
// @Summary      One linked student's dashboard
// @Tags         dashboard
// @Security     BearerAuth
// @Produce      json
// @Param        studentID path  int    true  "Student ID"
// @Param        from      query string false "First day (YYYY-MM-DD)"
// @Param        to        query string false "Last day (YYYY-MM-DD), inclusive"
// @Success      200 {object} ParentStudentDashboard
// @Failure      403 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /dashboard/parent/students/{studentID} [get]
func (h *Handler) GetParentStudentDashboard(c *gin.Context) {
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

	r, ok := h.rangeQuery(c)
	if !ok {
		return
	}
	dash, err := h.service.ParentStudent(c.Request.Context(), actor.ID, studentID, r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

// rangeQuery reads from/to as local days. to is inclusive on the wire and
// exclusive in the returned Range.
func (h *Handler) rangeQuery(c *gin.Context) (Range, bool) {
	var r Range
	for _, q := range []struct {
		name string
		dst  **time.Time
	}{{"from", &r.From}, {"to", &r.To}} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		t, err := time.ParseInLocation(dateLayout, raw, h.loc)
		if err != nil {
			api.Error(c, http.StatusBadRequest, "invalid "+q.name+": expected YYYY-MM-DD")
			return Range{}, false
		}
		*q.dst = &t
	}
	if r.To != nil {
		end := r.To.AddDate(0, 0, 1)
		r.To = &end
	}
	return r, true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidRange):
		api.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrStudentNotFound), errors.Is(err, user.ErrUserNotFound):
		api.Error(c, http.StatusNotFound, err.Error())
	default:
		wallet.RespondError(c, err)
	}
}

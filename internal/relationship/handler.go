package relationship

import (
	"errors"
	"net/http"

	"allowance/internal/api"
	"allowance/internal/auth"
	"allowance/internal/logger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type InviteRequest struct {
	StudentEmail string `json:"student_email" binding:"omitempty,email"`
}

type AcceptInviteRequest struct {
	Code string `json:"code" binding:"required,max=12"`
}

type AdminLinkRequest struct {
	ParentID  int `json:"parent_id" binding:"required,gt=0"`
	StudentID int `json:"student_id" binding:"required,gt=0"`
}

// ListMyStudents godoc
// @Summary      List students linked to me
// @Tags         links
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} Link
// @Router       /links/students [get]
func (h *Handler) ListMyStudents(c *gin.Context) {
	parentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	links, err := h.service.ListStudents(c.Request.Context(), parentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

// RevokeStudent godoc
// @Summary      Revoke my link to a student
// @Tags         links
// @Security     BearerAuth
// @Param        studentID path int true "Student ID"
// @Success      204
// @Failure      404 {object} api.ErrorResponse
// @Router       /links/students/{studentID} [delete]
func (h *Handler) RevokeStudent(c *gin.Context) {
	parentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}
	studentID, ok := api.IntParam(c, "studentID")
	if !ok {
		return
	}

	if err := h.service.Revoke(c.Request.Context(), parentID, studentID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetMyParent godoc
// @Summary      Get the parent I am linked to
// @Tags         links
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} Link
// @Failure      404 {object} api.ErrorResponse
// @Router       /links/parent [get]
func (h *Handler) GetMyParent(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	link, err := h.service.MyParent(c.Request.Context(), studentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

// CreateInvite godoc
// @Summary      Create an invite code for a student
// @Description  The code is valid for 7 days and can be used once.
// @Tags         links
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body InviteRequest false "Invite"
// @Success      201 {object} Invite
// @Router       /links/invites [post]
func (h *Handler) CreateInvite(c *gin.Context) {
	parentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var req InviteRequest
	if c.Request.ContentLength > 0 {
		if !api.BindJSON(c, &req) {
			return
		}
	}

	inv, err := h.service.CreateInvite(c.Request.Context(), parentID, req.StudentEmail)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h *Handler) ListInvites(c *gin.Context) {
	parentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	invites, err := h.service.ListInvites(c.Request.Context(), parentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invites)
}

// AcceptInvite godoc
// @Summary      Accept a parent's invite code
// @Tags         links
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body AcceptInviteRequest true "Code"
// @Success      201 {object} Link
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /links/invites/accept [post]
func (h *Handler) AcceptInvite(c *gin.Context) {
	studentID, ok := auth.GetUserID(c)
	if !ok {
		api.Error(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var req AcceptInviteRequest
	if !api.BindJSON(c, &req) {
		return
	}

	link, err := h.service.AcceptInvite(c.Request.Context(), studentID, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}

// AdminLink godoc
// @Summary      Link a parent to a student
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body AdminLinkRequest true "Link"
// @Success      201 {object} Link
// @Router       /admin/links [post]
func (h *Handler) AdminLink(c *gin.Context) {
	var req AdminLinkRequest
	if !api.BindJSON(c, &req) {
		return
	}

	link, err := h.service.AdminLink(c.Request.Context(), req.ParentID, req.StudentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrLinkNotFound), errors.Is(err, ErrUserNotFound):
		api.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInviteNotFound), errors.Is(err, ErrInviteNotUsable),
		errors.Is(err, ErrInviteExpired), errors.Is(err, ErrRoleMismatch):
		api.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAlreadyLinked):
		api.Error(c, http.StatusConflict, err.Error())
	default:
		logger.WithError(err).Error("link request failed")
		api.Error(c, http.StatusInternalServerError, "internal error")
	}
}

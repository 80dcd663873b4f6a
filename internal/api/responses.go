package api

import (
	"net/http"
	"strconv"

	"allowance/internal/money"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type HealthResponse struct {
	Status   string `json:"status" example:"ok"`
	Database string `json:"database,omitempty" example:"ok"`
	Queue    string `json:"queue,omitempty" example:"ok"`
}

func Error(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}

// IntParam reads a positive integer path parameter, answering 400 itself
// when the value is malformed.
func IntParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		Error(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

// Pagination reads limit/offset query parameters. limit defaults to 50 and
// is capped at 200.
func Pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Amount parses a decimal string field of a request body.
func Amount(c *gin.Context, field, raw string) (decimal.Decimal, bool) {
	d, err := money.Parse(raw)
	if err != nil {
		Error(c, http.StatusBadRequest, field+": "+err.Error())
		return decimal.Zero, false
	}
	return d, true
}

// OptionalAmount is Amount for fields that may be absent.
func OptionalAmount(c *gin.Context, field string, raw *string) (*decimal.Decimal, bool) {
	if raw == nil {
		return nil, true
	}
	d, ok := Amount(c, field, *raw)
	if !ok {
		return nil, false
	}
	return &d, true
}

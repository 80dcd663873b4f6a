package budget

import "errors"

var (
	ErrInvalidAllocationInput = errors.New("invalid allocation input")
	ErrPlanNotFound           = errors.New("plan not found")
	ErrBillNotFound           = errors.New("bill not found")
	ErrInvalidPlan            = errors.New("invalid plan")
	ErrInvalidBill            = errors.New("invalid bill")
)

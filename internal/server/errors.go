package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	carwashdomain "github.com/pitstophq/pitstop/internal/carwash/domain"
	catalogdomain "github.com/pitstophq/pitstop/internal/catalog/domain"
	customerdomain "github.com/pitstophq/pitstop/internal/customer/domain"
	parkingdomain "github.com/pitstophq/pitstop/internal/parking/domain"
	simracingdomain "github.com/pitstophq/pitstop/internal/simracing/domain"
)

// response is the envelope every endpoint answers with.
type response struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, response{
		Success: true,
		Code:    status,
		Message: message,
		Data:    data,
	})
}

// ErrorHandlingMiddleware turns the last error attached to the context into
// the envelope. Handlers attach domain errors and abort; the mapping from
// sentinel error to status code lives here and nowhere else.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, message := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, response{
			Success: false,
			Code:    status,
			Message: message,
			Error:   lastErr.Err.Error(),
		})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

var errInvalidRequest = errors.New("invalid_request")

type errorRule struct {
	target  error
	status  int
	message string
}

var errorRules = []errorRule{
	{errInvalidRequest, http.StatusBadRequest, "Invalid request body"},

	{carwashdomain.ErrTransactionNotFound, http.StatusNotFound, "Transaction not found"},
	{carwashdomain.ErrInvalidID, http.StatusBadRequest, "Invalid identifier"},
	{carwashdomain.ErrInvalidDeadline, http.StatusBadRequest, "Booking deadline must be in the future"},
	{carwashdomain.ErrDoubleBooking, http.StatusConflict, "A booking already holds that slot"},
	{carwashdomain.ErrActiveTransactionExists, http.StatusConflict, "An open transaction already exists for this vehicle"},
	{carwashdomain.ErrVehicleNumberRequired, http.StatusBadRequest, "Vehicle number is required"},
	{carwashdomain.ErrPaymentModeRequired, http.StatusBadRequest, "Payment mode is required"},
	{carwashdomain.ErrWashCountRequired, http.StatusBadRequest, "Wash count is required for a redemption"},
	{carwashdomain.ErrStreakNotEligible, http.StatusConflict, "Not enough eligible washes to redeem"},
	{carwashdomain.ErrInvalidAmount, http.StatusBadRequest, "Amounts are inconsistent"},
	{carwashdomain.ErrInvalidTransition, http.StatusConflict, "Transaction is not in a state that allows this"},
	{carwashdomain.ErrRollbackWindowExpired, http.StatusConflict, "Rollback window has expired"},

	{simracingdomain.ErrTransactionNotFound, http.StatusNotFound, "Transaction not found"},
	{simracingdomain.ErrInvalidID, http.StatusBadRequest, "Invalid identifier"},
	{simracingdomain.ErrInvalidDeadline, http.StatusBadRequest, "Booking deadline must be in the future"},
	{simracingdomain.ErrDoubleBooking, http.StatusConflict, "A booking already holds that slot"},
	{simracingdomain.ErrRigNotFound, http.StatusNotFound, "Rig not found"},
	{simracingdomain.ErrRigOccupied, http.StatusConflict, "Rig is already on track"},
	{simracingdomain.ErrCustomerOnTrack, http.StatusConflict, "Customer already has a session on track"},
	{simracingdomain.ErrRigNotOperational, http.StatusConflict, "Rig is out of service"},
	{simracingdomain.ErrPaymentModeRequired, http.StatusBadRequest, "Payment mode is required"},
	{simracingdomain.ErrInvalidAmount, http.StatusBadRequest, "Amounts are inconsistent"},
	{simracingdomain.ErrInvalidDuration, http.StatusBadRequest, "Session duration is required"},
	{simracingdomain.ErrInvalidTransition, http.StatusConflict, "Transaction is not in a state that allows this"},
	{simracingdomain.ErrRollbackWindowExpired, http.StatusConflict, "Rollback window has expired"},

	{parkingdomain.ErrTransactionNotFound, http.StatusNotFound, "Transaction not found"},
	{parkingdomain.ErrInvalidID, http.StatusBadRequest, "Invalid identifier"},
	{parkingdomain.ErrVehicleTypeNotFound, http.StatusNotFound, "Parking vehicle type not found"},
	{parkingdomain.ErrVehicleTypeUnavailable, http.StatusConflict, "Parking vehicle type is out of service"},
	{parkingdomain.ErrLotFull, http.StatusConflict, "Parking lot is full"},
	{parkingdomain.ErrOccupancyUnderflow, http.StatusConflict, "Parking occupancy is inconsistent"},
	{parkingdomain.ErrVehicleNumberRequired, http.StatusBadRequest, "Vehicle number is required"},
	{parkingdomain.ErrVehicleAlreadyParked, http.StatusConflict, "Vehicle is already parked"},
	{parkingdomain.ErrPaymentModeRequired, http.StatusBadRequest, "Payment mode is required"},
	{parkingdomain.ErrInvalidAmount, http.StatusBadRequest, "Amounts are inconsistent"},
	{parkingdomain.ErrInvalidTransition, http.StatusConflict, "Transaction is not in a state that allows this"},
	{parkingdomain.ErrRollbackWindowExpired, http.StatusConflict, "Rollback window has expired"},

	{customerdomain.ErrNotFound, http.StatusNotFound, "Customer not found"},
	{customerdomain.ErrInvalidID, http.StatusBadRequest, "Invalid identifier"},
	{customerdomain.ErrInvalidName, http.StatusBadRequest, "Customer name is required"},
	{customerdomain.ErrInvalidContact, http.StatusBadRequest, "Customer contact is required"},
	{customerdomain.ErrCustomerExists, http.StatusConflict, "A customer with this contact already exists"},

	{catalogdomain.ErrServiceTypeNotFound, http.StatusNotFound, "Service type not found"},
	{catalogdomain.ErrPaymentModeNotFound, http.StatusNotFound, "Payment mode not found"},
	{catalogdomain.ErrInvalidID, http.StatusBadRequest, "Invalid identifier"},
}

func mapError(err error) (int, string) {
	for _, rule := range errorRules {
		if errors.Is(err, rule.target) {
			return rule.status, rule.message
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

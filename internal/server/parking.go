package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pitstophq/pitstop/internal/parking/domain"
)

type parkVehicleRequest struct {
	VehicleTypeID string `json:"vehicle_type_id" binding:"required"`
	VehicleNumber string `json:"vehicle_number" binding:"required"`
}

func (s *Server) ParkVehicle(c *gin.Context) {
	var req parkVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	txn, err := s.parkingSvc.Park(c.Request.Context(), domain.ParkRequest{
		VehicleTypeID: req.VehicleTypeID,
		VehicleNumber: req.VehicleNumber,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Vehicle parked", txn)
}

type checkoutParkingRequest struct {
	PaymentModeID  string  `json:"payment_mode_id" binding:"required"`
	GrossAmount    float64 `json:"gross_amount"`
	DiscountAmount float64 `json:"discount_amount"`
	NetAmount      float64 `json:"net_amount"`
}

func (s *Server) CheckoutParking(c *gin.Context) {
	var req checkoutParkingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	txn, err := s.parkingSvc.Checkout(c.Request.Context(), domain.CheckoutRequest{
		TransactionID:  c.Param("id"),
		PaymentModeID:  req.PaymentModeID,
		GrossAmount:    req.GrossAmount,
		DiscountAmount: req.DiscountAmount,
		NetAmount:      req.NetAmount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Vehicle checked out", txn)
}

func (s *Server) CancelParking(c *gin.Context) {
	txn, err := s.parkingSvc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Transaction cancelled", txn)
}

func (s *Server) RollbackParking(c *gin.Context) {
	txn, err := s.parkingSvc.RollbackOneStep(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Transaction rolled back", txn)
}

func (s *Server) ListParkingTransactions(c *gin.Context) {
	day := s.clock.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			AbortWithError(c, errInvalidRequest)
			return
		}
		day = parsed
	}

	txns, err := s.parkingSvc.ListActiveAndTodays(c.Request.Context(), day)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Transactions fetched", txns)
}

func (s *Server) ListParkingVehicleTypes(c *gin.Context) {
	vts, err := s.parkingSvc.ListVehicleTypes(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Vehicle types fetched", vts)
}

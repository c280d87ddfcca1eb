package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pitstophq/pitstop/internal/carwash/domain"
)

type createCarWashBookingRequest struct {
	CustomerID      string    `json:"customer_id" binding:"required"`
	BookingDeadline time.Time `json:"booking_deadline" binding:"required"`
}

func (s *Server) CreateCarWashBooking(c *gin.Context) {
	var req createCarWashBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	txn, err := s.carWashSvc.CreateBooking(c.Request.Context(), domain.CreateBookingRequest{
		CustomerID:      req.CustomerID,
		BookingDeadline: req.BookingDeadline,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Booking created", txn)
}

type startCarWashRequest struct {
	CustomerID    string  `json:"customer_id"`
	ServiceTypeID string  `json:"service_type_id" binding:"required"`
	VehicleNumber string  `json:"vehicle_number" binding:"required"`
	ServiceRate   float64 `json:"service_rate"`
	ActualRate    float64 `json:"actual_rate"`
}

func (s *Server) StartCarWashDirect(c *gin.Context) {
	var req startCarWashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	txn, err := s.carWashSvc.StartDirect(c.Request.Context(), domain.StartDirectRequest{
		CustomerID:    req.CustomerID,
		ServiceTypeID: req.ServiceTypeID,
		VehicleNumber: req.VehicleNumber,
		ServiceRate:   req.ServiceRate,
		ActualRate:    req.ActualRate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Service started", txn)
}

func (s *Server) StartCarWashFromBooking(c *gin.Context) {
	var req startCarWashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	txn, err := s.carWashSvc.StartFromBooking(c.Request.Context(), domain.StartFromBookingRequest{
		TransactionID: c.Param("id"),
		ServiceTypeID: req.ServiceTypeID,
		VehicleNumber: req.VehicleNumber,
		ServiceRate:   req.ServiceRate,
		ActualRate:    req.ActualRate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Service started", txn)
}

type advanceCarWashRequest struct {
	Inspections []domain.InspectionCategory `json:"inspections"`
}

func (s *Server) AdvanceCarWashToReady(c *gin.Context) {
	var req advanceCarWashRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, errInvalidRequest)
			return
		}
	}

	txn, err := s.carWashSvc.AdvanceToReadyForPickup(c.Request.Context(), domain.AdvanceRequest{
		TransactionID: c.Param("id"),
		Inspections:   req.Inspections,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Transaction ready for pickup", txn)
}

type checkoutCarWashRequest struct {
	PaymentModeID  string     `json:"payment_mode_id" binding:"required"`
	GrossAmount    float64    `json:"gross_amount"`
	DiscountAmount float64    `json:"discount_amount"`
	NetAmount      float64    `json:"net_amount"`
	Redeemed       bool       `json:"redeemed"`
	WashCount      int        `json:"wash_count"`
	ParkingIn      *time.Time `json:"parking_in"`
	ParkingOut     *time.Time `json:"parking_out"`
	ParkingCost    float64    `json:"parking_cost"`
}

func (s *Server) CheckoutCarWash(c *gin.Context) {
	var req checkoutCarWashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	txn, err := s.carWashSvc.Checkout(c.Request.Context(), domain.CheckoutRequest{
		TransactionID:  c.Param("id"),
		PaymentModeID:  req.PaymentModeID,
		GrossAmount:    req.GrossAmount,
		DiscountAmount: req.DiscountAmount,
		NetAmount:      req.NetAmount,
		Redeemed:       req.Redeemed,
		WashCount:      req.WashCount,
		ParkingIn:      req.ParkingIn,
		ParkingOut:     req.ParkingOut,
		ParkingCost:    req.ParkingCost,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Transaction completed", txn)
}

func (s *Server) CancelCarWash(c *gin.Context) {
	txn, err := s.carWashSvc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Transaction cancelled", txn)
}

func (s *Server) RollbackCarWash(c *gin.Context) {
	txn, err := s.carWashSvc.RollbackOneStep(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Transaction rolled back", txn)
}

func (s *Server) ListCarWashTransactions(c *gin.Context) {
	day := s.clock.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			AbortWithError(c, errInvalidRequest)
			return
		}
		day = parsed
	}

	txns, err := s.carWashSvc.ListActiveAndTodays(c.Request.Context(), day)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Transactions fetched", txns)
}

func (s *Server) ListCarWashStreak(c *gin.Context) {
	txns, err := s.carWashSvc.EligibleStreakTransactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Eligible washes fetched", txns)
}

// CarWashCheckoutDetails bundles what the checkout screen needs in one call:
// the customer's eligible streak washes and the active payment modes.
func (s *Server) CarWashCheckoutDetails(c *gin.Context) {
	ctx := c.Request.Context()

	txns, err := s.carWashSvc.EligibleStreakTransactions(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	modes, err := s.catalogSvc.ActivePaymentModes(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, "Checkout details fetched", gin.H{
		"eligible_washes": txns,
		"payment_modes":   modes,
	})
}

func (s *Server) ListCarWashVehicleTypes(c *gin.Context) {
	vts, err := s.catalogSvc.ActiveVehicleTypes(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Vehicle types fetched", vts)
}

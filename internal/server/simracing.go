package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pitstophq/pitstop/internal/simracing/domain"
)

type createSimRacingBookingRequest struct {
	CustomerID      string    `json:"customer_id" binding:"required"`
	BookingDeadline time.Time `json:"booking_deadline" binding:"required"`
}

func (s *Server) CreateSimRacingBooking(c *gin.Context) {
	var req createSimRacingBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	txn, err := s.simRacingSvc.CreateBooking(c.Request.Context(), domain.CreateBookingRequest{
		CustomerID:      req.CustomerID,
		BookingDeadline: req.BookingDeadline,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Booking created", txn)
}

type startSimRacingSessionRequest struct {
	TransactionID  string  `json:"transaction_id"`
	CustomerID     string  `json:"customer_id"`
	RigID          string  `json:"rig_id" binding:"required"`
	RatePerSession float64 `json:"rate_per_session"`
}

func (s *Server) StartSimRacingSession(c *gin.Context) {
	var req startSimRacingSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	txn, err := s.simRacingSvc.StartSession(c.Request.Context(), domain.StartSessionRequest{
		TransactionID:  req.TransactionID,
		CustomerID:     req.CustomerID,
		RigID:          req.RigID,
		RatePerSession: req.RatePerSession,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Session started", txn)
}

type completeSimRacingRequest struct {
	PaymentModeID   string  `json:"payment_mode_id" binding:"required"`
	DurationMinutes int     `json:"duration_minutes"`
	GrossAmount     float64 `json:"gross_amount"`
	DiscountAmount  float64 `json:"discount_amount"`
	NetAmount       float64 `json:"net_amount"`
}

func (s *Server) CompleteSimRacing(c *gin.Context) {
	var req completeSimRacingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	txn, err := s.simRacingSvc.Complete(c.Request.Context(), domain.CompleteRequest{
		TransactionID:   c.Param("id"),
		PaymentModeID:   req.PaymentModeID,
		DurationMinutes: req.DurationMinutes,
		GrossAmount:     req.GrossAmount,
		DiscountAmount:  req.DiscountAmount,
		NetAmount:       req.NetAmount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Session completed", txn)
}

func (s *Server) CancelSimRacing(c *gin.Context) {
	txn, err := s.simRacingSvc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Transaction cancelled", txn)
}

func (s *Server) RollbackSimRacing(c *gin.Context) {
	txn, err := s.simRacingSvc.RollbackOneStep(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Transaction rolled back", txn)
}

func (s *Server) ListSimRacingTransactions(c *gin.Context) {
	day := s.clock.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			AbortWithError(c, errInvalidRequest)
			return
		}
		day = parsed
	}

	txns, err := s.simRacingSvc.ListActiveAndTodays(c.Request.Context(), day)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Transactions fetched", txns)
}

func (s *Server) ListSimRacingRigs(c *gin.Context) {
	rigs, err := s.simRacingSvc.ListRigs(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Rigs fetched", rigs)
}

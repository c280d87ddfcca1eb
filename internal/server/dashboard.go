package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/pitstophq/pitstop/internal/audit/domain"
	"github.com/pitstophq/pitstop/internal/transaction"
)

func (s *Server) ListPaymentModes(c *gin.Context) {
	modes, err := s.catalogSvc.ActivePaymentModes(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Payment modes fetched", modes)
}

var visitorDomains = []string{"carwash", "simracing", "parking"}

// VisitorCounts returns the per-day visitor tallies for every service line.
func (s *Server) VisitorCounts(c *gin.Context) {
	counts := make(map[string]map[string]int64, len(visitorDomains))
	for _, dom := range visitorDomains {
		perDay, err := s.cache.VisitorCounts(c.Request.Context(), dom)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		counts[dom] = perDay
	}
	respond(c, http.StatusOK, "Visitor counts fetched", counts)
}

type domainSummary struct {
	Income       float64 `json:"income"`
	Settled      int     `json:"settled"`
	Open         int     `json:"open"`
	VisitorCount int64   `json:"visitor_count"`
}

// DashboardSummary aggregates today's income, settled and open transaction
// counts, and visitor tallies per service line.
func (s *Server) DashboardSummary(c *gin.Context) {
	ctx := c.Request.Context()
	today := s.clock.Now().UTC().Truncate(24 * time.Hour)
	dayKey := today.Format("2006-01-02")

	summary := make(map[string]domainSummary, 3)

	carWash, err := s.carWashSvc.ListActiveAndTodays(ctx, today)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	cw := domainSummary{}
	for _, txn := range carWash {
		if txn.PaymentStatus == transaction.PaymentPaid {
			cw.Income += txn.NetAmount
			cw.Settled++
		} else if !txn.Status.Terminal() {
			cw.Open++
		}
	}
	summary["carwash"] = cw

	simRacing, err := s.simRacingSvc.ListActiveAndTodays(ctx, today)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	sr := domainSummary{}
	for _, txn := range simRacing {
		if txn.PaymentStatus == transaction.PaymentPaid {
			sr.Income += txn.NetAmount
			sr.Settled++
		} else if !txn.Status.Terminal() {
			sr.Open++
		}
	}
	summary["simracing"] = sr

	parkingTxns, err := s.parkingSvc.ListActiveAndTodays(ctx, today)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	pk := domainSummary{}
	for _, txn := range parkingTxns {
		if txn.PaymentStatus == transaction.PaymentPaid {
			pk.Income += txn.NetAmount
			pk.Settled++
		} else if !txn.Status.Terminal() {
			pk.Open++
		}
	}
	summary["parking"] = pk

	for _, dom := range visitorDomains {
		perDay, err := s.cache.VisitorCounts(ctx, dom)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		entry := summary[dom]
		entry.VisitorCount = perDay[dayKey]
		summary[dom] = entry
	}

	respond(c, http.StatusOK, "Dashboard summary fetched", summary)
}

func (s *Server) ListActivities(c *gin.Context) {
	req := auditdomain.ListRequest{
		SystemModule: c.Query("module"),
		ActivityType: auditdomain.ActivityType(c.Query("type")),
	}

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, errInvalidRequest)
			return
		}
		req.From = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, errInvalidRequest)
			return
		}
		req.To = &parsed
	}

	activities, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Activities fetched", activities)
}

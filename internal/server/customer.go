package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pitstophq/pitstop/internal/customer/domain"
)

type createCustomerRequest struct {
	Name    string `json:"name" binding:"required"`
	Contact string `json:"contact" binding:"required"`
	Address string `json:"address"`
}

type updateCustomerRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

func (s *Server) createCustomer(c *gin.Context, dom domain.Domain) {
	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	customer, err := s.customerSvc.Create(c.Request.Context(), domain.CreateRequest{
		Domain:  dom,
		Name:    req.Name,
		Contact: req.Contact,
		Address: req.Address,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Customer created", customer)
}

func (s *Server) updateCustomer(c *gin.Context, dom domain.Domain) {
	var req updateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errInvalidRequest)
		return
	}

	customer, err := s.customerSvc.Update(c.Request.Context(), dom, domain.UpdateRequest{
		ID:      c.Param("id"),
		Name:    req.Name,
		Contact: req.Contact,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Customer updated", customer)
}

// listCustomers returns the customer book with lifetime settled revenue, or
// a single customer when a contact filter is given.
func (s *Server) listCustomers(c *gin.Context, dom domain.Domain) {
	if contact := c.Query("contact"); contact != "" {
		customer, err := s.customerSvc.FindByContact(c.Request.Context(), dom, contact)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		respond(c, http.StatusOK, "Customer fetched", customer)
		return
	}

	customers, err := s.customerSvc.ListWithTotals(c.Request.Context(), dom)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "Customers fetched", customers)
}

func (s *Server) CreateCarWashCustomer(c *gin.Context) {
	s.createCustomer(c, domain.DomainCarWash)
}

func (s *Server) UpdateCarWashCustomer(c *gin.Context) {
	s.updateCustomer(c, domain.DomainCarWash)
}

func (s *Server) ListCarWashCustomers(c *gin.Context) {
	s.listCustomers(c, domain.DomainCarWash)
}

func (s *Server) CreateSimRacingCustomer(c *gin.Context) {
	s.createCustomer(c, domain.DomainSimRacing)
}

func (s *Server) UpdateSimRacingCustomer(c *gin.Context) {
	s.updateCustomer(c, domain.DomainSimRacing)
}

func (s *Server) ListSimRacingCustomers(c *gin.Context) {
	s.listCustomers(c, domain.DomainSimRacing)
}

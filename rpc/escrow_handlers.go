package rpc

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"labledger/native/escrow"
)

type payOrderBody struct {
	ServiceID                string `json:"serviceId"`
	CustomerSubstrateAddress string `json:"customerSubstrateAddress"`
	SellerSubstrateAddress   string `json:"sellerSubstrateAddress"`
	CustomerAddress          string `json:"customerAddress"`
	SellerAddress            string `json:"sellerAddress"`
	DNASampleTrackingID      string `json:"dnaSampleTrackingId"`
	TestingPrice             string `json:"testingPrice"`
	QCPrice                  string `json:"qcPrice"`
	Amount                   string `json:"amount"`
}

func (s *Server) orderIDParam(w http.ResponseWriter, r *http.Request) ([32]byte, bool) {
	id, err := parseHashField("orderId", chi.URLParam(r, "orderId"))
	if err != nil {
		writeBadRequest(w, "%v", err)
		return id, false
	}
	return id, true
}

func (body payOrderBody) payment(id [32]byte) (escrow.Payment, error) {
	p := escrow.Payment{
		OrderID:                  id,
		CustomerSubstrateAddress: body.CustomerSubstrateAddress,
		SellerSubstrateAddress:   body.SellerSubstrateAddress,
		DNASampleTrackingID:      body.DNASampleTrackingID,
	}
	var err error
	if p.ServiceID, err = parseHashField("serviceId", body.ServiceID); err != nil {
		return p, err
	}
	if p.CustomerAddress, err = parseAddressField("customerAddress", body.CustomerAddress); err != nil {
		return p, err
	}
	if p.SellerAddress, err = parseAddressField("sellerAddress", body.SellerAddress); err != nil {
		return p, err
	}
	if p.TestingPrice, err = parseAmountField("testingPrice", body.TestingPrice); err != nil {
		return p, err
	}
	if p.QCPrice, err = parseAmountField("qcPrice", body.QCPrice); err != nil {
		return p, err
	}
	if p.Amount, err = parseAmountField("amount", body.Amount); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Server) handlePayOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := s.orderIDParam(w, r)
	if !ok {
		return
	}
	var body payOrderBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	payment, err := body.payment(id)
	if err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	order, err := s.node.PayOrder(caller, payment)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderJSONFrom(order))
}

func (s *Server) handleFulfillOrder(w http.ResponseWriter, r *http.Request) {
	s.adminOrderAction(w, r, s.node.FulfillOrder)
}

func (s *Server) handleRefundOrder(w http.ResponseWriter, r *http.Request) {
	s.adminOrderAction(w, r, s.node.RefundOrder)
}

func (s *Server) adminOrderAction(w http.ResponseWriter, r *http.Request, action func([20]byte, [32]byte) (*escrow.Order, error)) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := s.orderIDParam(w, r)
	if !ok {
		return
	}
	order, err := action(caller, id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderJSONFrom(order))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderIDParam(w, r)
	if !ok {
		return
	}
	order, err := s.node.GetOrderByOrderID(id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderJSONFrom(order))
}

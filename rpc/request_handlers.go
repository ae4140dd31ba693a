package rpc

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"labledger/native/requests"
	"labledger/rpc/middleware"
)

type createRequestBody struct {
	Country         string `json:"country"`
	City            string `json:"city"`
	ServiceCategory string `json:"serviceCategory"`
	StakingAmount   string `json:"stakingAmount"`
}

type claimRequestBody struct {
	ServiceID    string `json:"serviceId"`
	TestingPrice string `json:"testingPrice"`
	QCPrice      string `json:"qcPrice"`
}

type processRequestBody struct {
	OrderID                  string `json:"orderId"`
	CustomerSubstrateAddress string `json:"customerSubstrateAddress"`
	SellerSubstrateAddress   string `json:"sellerSubstrateAddress"`
	CustomerAddress          string `json:"customerAddress"`
	SellerAddress            string `json:"sellerAddress"`
	DNASampleTrackingID      string `json:"dnaSampleTrackingId"`
}

type countJSON struct {
	Count uint64 `json:"count"`
}

func (s *Server) requireCaller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, ok := s.caller(r)
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthenticated", "caller identity required")
	}
	return caller, ok
}

func (s *Server) requestHashParam(w http.ResponseWriter, r *http.Request) ([32]byte, bool) {
	hash, err := parseHashField("hash", chi.URLParam(r, "hash"))
	if err != nil {
		writeBadRequest(w, "%v", err)
		return hash, false
	}
	return hash, true
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var body createRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	stake, err := parseAmountField("stakingAmount", body.StakingAmount)
	if err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	req, err := s.node.CreateRequest(caller, body.Country, body.City, body.ServiceCategory, stake)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, requestJSONFrom(req))
}

func (s *Server) handleClaimRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	hash, ok := s.requestHashParam(w, r)
	if !ok {
		return
	}
	var body claimRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	serviceID, err := parseHashField("serviceId", body.ServiceID)
	if err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	testingPrice, err := parseAmountField("testingPrice", body.TestingPrice)
	if err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	qcPrice, err := parseAmountField("qcPrice", body.QCPrice)
	if err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	offer, err := s.node.ClaimRequest(caller, hash, serviceID, testingPrice, qcPrice)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, offerJSONFrom(offer))
}

func (s *Server) handleProcessRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	hash, ok := s.requestHashParam(w, r)
	if !ok {
		return
	}
	var body processRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	params := requests.ProcessParams{
		RequestHash:              hash,
		CustomerSubstrateAddress: body.CustomerSubstrateAddress,
		SellerSubstrateAddress:   body.SellerSubstrateAddress,
		DNASampleTrackingID:      body.DNASampleTrackingID,
	}
	var err error
	if params.OrderID, err = parseHashField("orderId", body.OrderID); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	if params.CustomerAddress, err = parseAddressField("customerAddress", body.CustomerAddress); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	if params.SellerAddress, err = parseAddressField("sellerAddress", body.SellerAddress); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	req, err := s.node.ProcessRequest(caller, params)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requestJSONFrom(req))
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	s.requesterAction(w, r, s.node.Unstake)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	s.requesterAction(w, r, s.node.RetrieveUnstakedAmount)
}

func (s *Server) requesterAction(w http.ResponseWriter, r *http.Request, action func([20]byte, [32]byte) (*requests.Request, error)) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	hash, ok := s.requestHashParam(w, r)
	if !ok {
		return
	}
	req, err := action(caller, hash)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requestJSONFrom(req))
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.requestHashParam(w, r)
	if !ok {
		return
	}
	req, err := s.node.GetRequestByHash(hash)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requestJSONFrom(req))
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.requestHashParam(w, r)
	if !ok {
		return
	}
	offer, err := s.node.ServiceOfferByRequestHash(hash)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, offerJSONFrom(offer))
}

func (s *Server) writeHashList(w http.ResponseWriter, r *http.Request, hashes [][32]byte, err error) {
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hashListJSONFrom(hashes))
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	hashes, err := s.node.GetAllRequests()
	s.writeHashList(w, r, hashes, err)
}

func (s *Server) handleRequestsByCountry(w http.ResponseWriter, r *http.Request) {
	hashes, err := s.node.GetRequestsByCountry(chi.URLParam(r, "country"))
	s.writeHashList(w, r, hashes, err)
}

func (s *Server) handleRequestsByCountryCity(w http.ResponseWriter, r *http.Request) {
	hashes, err := s.node.GetRequestsByCountryCity(chi.URLParam(r, "country"), chi.URLParam(r, "city"))
	s.writeHashList(w, r, hashes, err)
}

func (s *Server) handleRequestsByRequester(w http.ResponseWriter, r *http.Request) {
	requester, err := parseAddressField("address", chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	hashes, err := s.node.GetRequestsByRequesterAddress(requester)
	s.writeHashList(w, r, hashes, err)
}

func (s *Server) handleRequestCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.node.GetRequestCount()
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countJSON{Count: count})
}

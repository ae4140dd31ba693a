package rpc

import (
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"labledger/core/events"
)

type balanceJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type allowanceJSON struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

type okJSON struct {
	OK bool `json:"ok"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddressField("address", chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	balance, err := s.node.BalanceOf(owner)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSON{Address: events.FormatAddress(owner), Balance: events.FormatAmount(balance)})
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddressField("owner", chi.URLParam(r, "owner"))
	if err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	spender, err := parseAddressField("spender", chi.URLParam(r, "spender"))
	if err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	allowance, err := s.node.Allowance(owner, spender)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, allowanceJSON{
		Owner:     events.FormatAddress(owner),
		Spender:   events.FormatAddress(spender),
		Allowance: events.FormatAmount(allowance),
	})
}

// targetBody is the {<party>, amount} body shared by the token writes. Only
// one of To and Spender is accepted per route.
type targetBody struct {
	To      string `json:"to,omitempty"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}

func (s *Server) tokenWrite(w http.ResponseWriter, r *http.Request, field string, apply func(caller, target [20]byte, amount *big.Int) error) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var body targetBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	raw := body.To
	if field == "spender" {
		raw = body.Spender
	}
	target, err := parseAddressField(field, raw)
	if err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	amount, err := parseAmountField("amount", body.Amount)
	if err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	if err := apply(caller, target, amount); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okJSON{OK: true})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	s.tokenWrite(w, r, "to", s.node.Transfer)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.tokenWrite(w, r, "spender", s.node.Approve)
}

// handleMint credits the recipient from the operator faucet. Any
// authenticated caller may use it while the faucet is enabled.
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	s.tokenWrite(w, r, "to", func(_, to [20]byte, amount *big.Int) error {
		return s.node.Mint(to, amount)
	})
}

package rpc

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"labledger/core/events"
)

type curationJSON struct {
	Address string `json:"address"`
	Curated bool   `json:"curated"`
}

func (s *Server) labParam(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	lab, err := parseAddressField("address", chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, "%v", err)
		return lab, false
	}
	return lab, true
}

func (s *Server) handleIsCurated(w http.ResponseWriter, r *http.Request) {
	lab, ok := s.labParam(w, r)
	if !ok {
		return
	}
	curated, err := s.node.IsCurated(lab)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, curationJSON{Address: events.FormatAddress(lab), Curated: curated})
}

func (s *Server) handleCurateLab(w http.ResponseWriter, r *http.Request) {
	s.setCuration(w, r, true)
}

func (s *Server) handleUncurateLab(w http.ResponseWriter, r *http.Request) {
	s.setCuration(w, r, false)
}

func (s *Server) setCuration(w http.ResponseWriter, r *http.Request, curated bool) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	lab, ok := s.labParam(w, r)
	if !ok {
		return
	}
	var err error
	if curated {
		err = s.node.CurateLab(caller, lab)
	} else {
		err = s.node.UncurateLab(caller, lab)
	}
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, curationJSON{Address: events.FormatAddress(lab), Curated: curated})
}

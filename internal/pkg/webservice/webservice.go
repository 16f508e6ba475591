/*
webservice.go Read-only HTTP view of a market: the latest clearing record
and the registered participants' curves. Observability only; the clearing
contract lives in the market package.
*/

package webservice

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gridloop/tem_core/internal/pkg/bid"
	"github.com/gridloop/tem_core/internal/pkg/market"
	"github.com/gridloop/tem_core/internal/pkg/msg"
)

// ParticipantCurve is the wire form of one participant's registration.
type ParticipantCurve struct {
	Name   string      `json:"Name"`
	Remote bool        `json:"Remote"`
	Points []bid.Point `json:"Points"`
}

// Service exposes a market over HTTP.
type Service struct {
	mux       *sync.Mutex
	pid       uuid.UUID
	market    *market.Market
	last      market.ClearingRecord
	hasRecord bool
}

// New returns a Service subscribed to the market's clearing broadcasts.
func New(m *market.Market) (*Service, error) {
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}

	ch, err := m.Subscribe(pid, msg.Clearing)
	if err != nil {
		return nil, err
	}

	s := &Service{
		mux:    &sync.Mutex{},
		pid:    pid,
		market: m,
	}
	go s.track(ch)
	return s, nil
}

func (s *Service) track(ch <-chan msg.Msg) {
	for m := range ch {
		record, ok := m.Payload().(market.ClearingRecord)
		if !ok {
			continue
		}
		s.mux.Lock()
		s.last = record
		s.hasRecord = true
		s.mux.Unlock()
	}
}

// Router builds the mux routes for the service.
func (s *Service) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/market/clearing", s.ClearingHandler).Methods("GET")
	router.HandleFunc("/market/participants", s.ParticipantsHandler).Methods("GET")
	return router
}

// Serve blocks on the HTTP listener.
func (s *Service) Serve(addr string) error {
	log.Println("[Webservice] listening on", addr)
	return http.ListenAndServe(addr, s.Router())
}

// ClearingHandler returns the most recent clearing record.
func (s *Service) ClearingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	s.mux.Lock()
	record, ok := s.last, s.hasRecord
	s.mux.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	body, err := json.Marshal(record)
	if err != nil {
		log.Println("[Webservice] malformed JSON:", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// ParticipantsHandler dumps the registered curves.
func (s *Service) ParticipantsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	curves := make([]ParticipantCurve, 0)
	s.market.ForEachParticipant(func(p market.Participant) {
		curves = append(curves, ParticipantCurve{
			Name:   p.Name(),
			Remote: p.Remote(),
			Points: p.Curve().Points(),
		})
	})

	body, err := json.Marshal(curves)
	if err != nil {
		log.Println("[Webservice] malformed JSON:", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

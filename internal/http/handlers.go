package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/service-dispatch/internal/dispatch"
	"github.com/example/service-dispatch/internal/ledger"
	"github.com/example/service-dispatch/internal/models"
	"github.com/example/service-dispatch/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var in dispatch.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req, err := s.Dispatch.Submit(r.Context(), in)
	if err != nil {
		if errors.Is(err, dispatch.ErrValidation) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("submit failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusCreated, req)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req, err := s.Store.GetRequest(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "request not found")
			return
		}
		s.logger.Error("get request failed", "request_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		ProviderID string `json:"provider_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ProviderID == "" {
		respondError(w, http.StatusBadRequest, "provider_id is required")
		return
	}
	req, err := s.Ledger.Accept(r.Context(), id, body.ProviderID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			respondError(w, http.StatusNotFound, "request not found")
		case errors.Is(err, ledger.ErrConflict):
			respondError(w, http.StatusConflict, "request no longer available")
		default:
			s.logger.Error("accept failed", "request_id", id, "error", err)
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	if _, err := s.Payments.Hold(r.Context(), req); err != nil {
		// best-effort; the collaborator retries the hold out of band
		s.logger.Warn("payment hold failed", "request_id", req.ID, "error", err)
	}
	respondJSON(w, http.StatusOK, req)
}

func (s *Server) handleTransitionRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		TargetStatus string `json:"target_status"`
		ActorID      string `json:"actor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TargetStatus == "" || body.ActorID == "" {
		respondError(w, http.StatusBadRequest, "target_status and actor_id are required")
		return
	}
	req, err := s.Ledger.Transition(r.Context(), id, models.Status(body.TargetStatus), body.ActorID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			respondError(w, http.StatusNotFound, "request not found")
		case errors.Is(err, ledger.ErrRejected):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ledger.ErrConflict):
			respondError(w, http.StatusConflict, "request changed concurrently")
		default:
			s.logger.Error("transition failed", "request_id", id, "target", body.TargetStatus, "error", err)
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func (s *Server) handleEarningsSummary(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		to = t
	}
	sum, err := s.Store.EarningsSummary(r.Context(), id, from, to)
	if err != nil {
		s.logger.Error("earnings summary failed", "provider_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (s *Server) handlePositionUpdate(w http.ResponseWriter, r *http.Request) {
	var u models.PositionUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil || u.ProviderID == "" {
		respondError(w, http.StatusBadRequest, "provider_id and loc are required")
		return
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now()
	}
	if s.Kafka != nil {
		if err := s.Kafka.PublishPosition(r.Context(), u); err != nil {
			s.logger.Warn("position publish failed", "provider_id", u.ProviderID, "error", err)
		}
	}
	s.Geo.Update(u)
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleUpsertProvider(w http.ResponseWriter, r *http.Request) {
	var p models.Provider
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	p.ID = mux.Vars(r)["id"]
	if err := s.Store.UpsertProvider(r.Context(), &p); err != nil {
		s.logger.Error("upsert provider failed", "provider_id", p.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpsertRequester(w http.ResponseWriter, r *http.Request) {
	var rq models.Requester
	if err := json.NewDecoder(r.Body).Decode(&rq); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	rq.ID = mux.Vars(r)["id"]
	if err := s.Store.UpsertRequester(r.Context(), &rq); err != nil {
		s.logger.Error("upsert requester failed", "requester_id", rq.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePaymentConfirm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequestID   string    `json:"request_id"`
		AmountCents int64     `json:"amount_cents"`
		SettledAt   time.Time `json:"settled_at"`
		GatewayRef  string    `json:"gateway_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RequestID == "" {
		respondError(w, http.StatusBadRequest, "request_id is required")
		return
	}
	if body.SettledAt.IsZero() {
		body.SettledAt = time.Now()
	}
	if err := s.Payments.Confirm(r.Context(), body.RequestID, body.AmountCents, body.SettledAt, body.GatewayRef); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "request not found")
			return
		}
		s.logger.Error("payment confirm failed", "request_id", body.RequestID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePaymentRelease(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequestID  string `json:"request_id"`
		GatewayRef string `json:"gateway_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RequestID == "" {
		respondError(w, http.StatusBadRequest, "request_id is required")
		return
	}
	if err := s.Payments.Release(r.Context(), body.RequestID, time.Now(), body.GatewayRef); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "request not found")
			return
		}
		s.logger.Error("payment release failed", "request_id", body.RequestID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWS upgrades a provider connection and registers it for intent
// delivery. The read pump exists only to notice the close.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	providerID := mux.Vars(r)["provider_id"]
	if providerID == "" {
		respondError(w, http.StatusBadRequest, "provider_id is required")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "provider_id", providerID, "error", err)
		return
	}
	s.WSReg.Add(providerID, conn)
	s.logger.Info("ws session opened", "provider_id", providerID)

	go func() {
		defer func() {
			s.WSReg.Remove(providerID)
			conn.Close()
			s.logger.Info("ws session closed", "provider_id", providerID)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

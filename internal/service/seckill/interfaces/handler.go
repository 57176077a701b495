// internal/service/seckill/interfaces/handler.go
package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/since-leoo/mine-shop-sub008/internal/service/seckill/application"
	"github.com/since-leoo/mine-shop-sub008/internal/service/seckill/domain"
)

// Handler 秒杀场次管理接口。下单统一走订单接口，这里只管场次生命周期。
type Handler struct {
	service *application.SeckillService
}

func NewHandler(service *application.SeckillService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/seckill/session/create", h.createSession)
	mux.HandleFunc("/api/seckill/session/get", h.getSession)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var cmd application.CreateSessionCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	session, err := h.service.CreateSession(r.Context(), &cmd)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
		return
	}
	session, err := h.service.GetSession(r.Context(), id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// internal/service/promotion/interfaces/handler.go
package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/since-leoo/mine-shop-sub008/internal/service/promotion/application"
	"github.com/since-leoo/mine-shop-sub008/internal/service/promotion/domain"
)

// Handler 优惠券接口层。
type Handler struct {
	service *application.PromotionService
}

func NewHandler(service *application.PromotionService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/coupon/template/create", h.createTemplate)
	mux.HandleFunc("/api/coupon/receive", h.receive)
	mux.HandleFunc("/api/coupon/grant/get", h.getGrant)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrCouponNotFound), errors.Is(err, domain.ErrGrantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIssuedOut),
		errors.Is(err, domain.ErrLimitExceeded),
		errors.Is(err, domain.ErrNotStarted),
		errors.Is(err, domain.ErrExpired):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var cmd application.CreateTemplateCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	template, err := h.service.CreateTemplate(r.Context(), &cmd)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, template)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	couponID := r.URL.Query().Get("couponId")
	memberNo := r.URL.Query().Get("memberNo")
	if couponID == "" || memberNo == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "couponId and memberNo are required"})
		return
	}
	grant, err := h.service.Receive(r.Context(), couponID, memberNo)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (h *Handler) getGrant(w http.ResponseWriter, r *http.Request) {
	grantID := r.URL.Query().Get("grantId")
	if grantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "grantId is required"})
		return
	}
	grant, err := h.service.GetGrant(r.Context(), grantID)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

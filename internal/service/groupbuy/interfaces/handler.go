// internal/service/groupbuy/interfaces/handler.go
package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/application"
	"github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/domain"
)

// Handler 拼团活动管理接口。开团/参团走订单接口，这里只管活动和团的查询管理。
type Handler struct {
	service *application.GroupBuyService
}

func NewHandler(service *application.GroupBuyService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/groupbuy/activity/create", h.createActivity)
	mux.HandleFunc("/api/groupbuy/activity/cancel", h.cancelActivity)
	mux.HandleFunc("/api/groupbuy/activity/get", h.getActivity)
	mux.HandleFunc("/api/groupbuy/group/get", h.getGroup)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var cmd application.CreateActivityCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	activity, err := h.service.CreateActivity(r.Context(), &cmd)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

func (h *Handler) cancelActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("activityId")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "activityId is required"})
		return
	}
	err := h.service.CancelActivity(r.Context(), id)
	if errors.Is(err, domain.ErrActivityNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if errors.Is(err, domain.ErrActivityNotActive) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"activityId": id, "status": string(domain.ActivityCancelled)})
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("activityId")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "activityId is required"})
		return
	}
	activity, err := h.service.GetActivity(r.Context(), id)
	if errors.Is(err, domain.ErrActivityNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	groupNo := r.URL.Query().Get("groupNo")
	if groupNo == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "groupNo is required"})
		return
	}
	group, err := h.service.GetGroup(r.Context(), groupNo)
	if errors.Is(err, domain.ErrGroupNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, group)
}

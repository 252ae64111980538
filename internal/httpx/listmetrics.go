package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/voxisys/utapi/schema"
)

// listMetricsRequest is the JSON body of a metric query. The resource list
// must match the family in the path: buckets for /buckets, accounts for
// /accounts. Service queries carry no list; the component is implied.
type listMetricsRequest struct {
	Buckets   []string `json:"buckets" validate:"omitempty,dive,required"`
	Accounts  []string `json:"accounts" validate:"omitempty,dive,required"`
	TimeRange []int64  `json:"timeRange" validate:"required,len=2"`
}

var validate = validator.New()

func (h *Handler) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := h.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.writeError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(ctx, w, http.StatusBadRequest, "unreadable request body")
		return
	}

	accessKey, err := h.Verifier.Verify(r, body)
	if err != nil {
		h.rejectUnauthorized(ctx, w, err)
		return
	}

	var req listMetricsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	family := mux.Vars(r)["family"]
	level := familyLevels[family]
	var resources []string
	switch level {
	case schema.LevelBucket:
		resources = req.Buckets
	case schema.LevelAccount:
		resources = req.Accounts
	}

	records, err := h.Metrics.ListMetrics(ctx, level, resources, req.TimeRange[0], req.TimeRange[1])
	if err != nil {
		h.mapQueryError(ctx, w, err)
		return
	}

	rid, _ := GetRequestID(ctx)
	h.Log.Info("metrics listed",
		"requestId", rid,
		"accessKey", accessKey,
		"family", family,
		"resources", len(records),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(records); err != nil {
		h.Log.Error("write response", "requestId", rid, "error", err)
	}
}

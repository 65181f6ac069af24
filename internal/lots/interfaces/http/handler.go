package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"devicelab/internal/api/envelope"
	"devicelab/internal/lots/application"
	lots "devicelab/internal/lots/domain"
	"devicelab/internal/observability/metrics"
)

const maxBodyBytes = 1 << 20

// VerifyRequest selects the lot to verify.
type VerifyRequest struct {
	LotSeqID int64  `json:"lotSeqId"`
	LotType  string `json:"lotType"`
}

// RequiredPercentageRequest updates the sampling requirement.
type RequiredPercentageRequest struct {
	RequiredPercentage *int `json:"requiredPercentage"`
}

// Handler provides lot verification and lot management endpoints.
type Handler struct {
	engine *application.Engine
	logger *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(engine *application.Engine, logger *log.Logger) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("lots handler: nil engine")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Handler{engine: engine, logger: logger}, nil
}

// Register mounts the routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/BenchTest/VerifyBenchTest", h.verify).Methods(http.MethodPost)

	lm := r.PathPrefix("/LotManagement").Subrouter()
	lm.HandleFunc("/GetLotsForMarkBenchTestComplete", h.eligibleLots).Methods(http.MethodGet)
	lm.HandleFunc("/GetDevicesByLot", h.devicesByLot).Methods(http.MethodGet)
	lm.HandleFunc("/GetLotProgress", h.lotProgress).Methods(http.MethodGet)
	lm.HandleFunc("/RequiredPercentage", h.getRequiredPercentage).Methods(http.MethodGet)
	lm.HandleFunc("/RequiredPercentage", h.setRequiredPercentage).Methods(http.MethodPut)
}

// verify handles POST /BenchTest/VerifyBenchTest. With ?format=pdf the
// result is returned as a printable verification report.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	lotType, err := lots.ParseLotType(req.LotType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.engine.Verify(r.Context(), req.LotSeqID, lotType)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "pdf") {
		data, err := BuildVerificationPDF(result)
		metrics.IncReportExport("pdf", err)
		if err != nil {
			h.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=lot-%d-verification.pdf", result.LotSeqID))
		_, _ = w.Write(data)
		return
	}

	if result.PartialFailure() {
		envelope.WriteDataStatus(w, result, fmt.Sprintf("%s: %d of %d devices failed to update",
			envelope.CodePartialFailure, result.FailedUpdates, result.FailedUpdates+result.SuccessfulUpdates))
		return
	}
	if result.FailedUpdates > 0 {
		envelope.WriteDataStatus(w, result, fmt.Sprintf("all %d device updates failed", result.FailedUpdates))
		return
	}
	envelope.WriteData(w, result)
}

func (h *Handler) eligibleLots(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.GetEligibleLots(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, result)
}

func (h *Handler) devicesByLot(w http.ResponseWriter, r *http.Request) {
	seqID, lotType, ok := h.lotQuery(w, r)
	if !ok {
		return
	}
	devices, err := h.engine.ListDevices(r.Context(), seqID, lotType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, devices)
}

func (h *Handler) lotProgress(w http.ResponseWriter, r *http.Request) {
	seqID, lotType, ok := h.lotQuery(w, r)
	if !ok {
		return
	}
	progress, err := h.engine.ComputeProgress(r.Context(), seqID, lotType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, progress)
}

func (h *Handler) getRequiredPercentage(w http.ResponseWriter, r *http.Request) {
	pct, err := h.engine.RequiredPercentage(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, map[string]int{"requiredPercentage": pct})
}

func (h *Handler) setRequiredPercentage(w http.ResponseWriter, r *http.Request) {
	var req RequiredPercentageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RequiredPercentage == nil {
		envelope.WriteCode(w, envelope.CodeInvalidRequest, "requiredPercentage required")
		return
	}
	if err := h.engine.SetRequiredPercentage(r.Context(), *req.RequiredPercentage); err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, map[string]int{"requiredPercentage": *req.RequiredPercentage})
}

func (h *Handler) lotQuery(w http.ResponseWriter, r *http.Request) (int64, lots.LotType, bool) {
	query := r.URL.Query()
	seqID, err := strconv.ParseInt(query.Get("lotSeqId"), 10, 64)
	if err != nil || seqID <= 0 {
		envelope.WriteCode(w, envelope.CodeInvalidRequest, "lotSeqId must be a positive integer")
		return 0, "", false
	}
	lotType, err := lots.ParseLotType(query.Get("lotType"))
	if err != nil {
		h.writeError(w, err)
		return 0, "", false
	}
	return seqID, lotType, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := ErrorCode(err)
	if code == envelope.CodeInternalError {
		h.logger.Printf("lots handler: %v", err)
		envelope.WriteCode(w, code, "internal error")
		return
	}
	envelope.WriteCode(w, code, err.Error())
}

// ErrorCode maps lot errors to envelope codes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, lots.ErrInvalidRequest):
		return envelope.CodeInvalidRequest
	case errors.Is(err, lots.ErrNoDevicesFound):
		return envelope.CodeNoDevicesFound
	case errors.Is(err, lots.ErrLotNotFound):
		return envelope.CodeNotFound
	default:
		return envelope.CodeInternalError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		envelope.WriteCode(w, envelope.CodeInvalidRequest, "invalid json body")
		return false
	}
	return true
}

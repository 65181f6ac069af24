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
	"devicelab/internal/benchtest/application"
	benchtest "devicelab/internal/benchtest/domain"
	"devicelab/internal/observability/metrics"
)

const maxBodyBytes = 1 << 20

// Handler provides bench test board and board device endpoints.
type Handler struct {
	service *application.Service
	logger  *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *application.Service, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("benchtest handler: nil service")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Handler{service: service, logger: logger}, nil
}

// Register mounts the routes on r.
func (h *Handler) Register(r *mux.Router) {
	bt := r.PathPrefix("/BenchTest").Subrouter()
	bt.HandleFunc("/AddBoard", h.addBoard).Methods(http.MethodPost)
	bt.HandleFunc("/UpdateBoard", h.updateBoard).Methods(http.MethodPut)
	bt.HandleFunc("/DeleteBoard/{boardId}", h.deleteBoard).Methods(http.MethodDelete)
	bt.HandleFunc("/GetBoard/{boardId}", h.getBoard).Methods(http.MethodGet)
	bt.HandleFunc("/GetBoardsByLocation/{locationCode}", h.getBoardsByLocation).Methods(http.MethodGet)
	bt.HandleFunc("/GetBoardReport/{boardId}", h.getBoardReport).Methods(http.MethodGet)
	bt.HandleFunc("/AddTest", h.addTest).Methods(http.MethodPost)
	bt.HandleFunc("/StopTest/{boardId}", h.stopTest).Methods(http.MethodPost)
	bt.HandleFunc("/ClearTest/{boardId}", h.clearTest).Methods(http.MethodPost)
	bt.HandleFunc("/StopIfCompleteTest/{boardId}", h.stopIfComplete).Methods(http.MethodPost)

	dev := r.PathPrefix("/BenchTestDevice").Subrouter()
	dev.HandleFunc("/SaveDeviceToBoard", h.saveDevice).Methods(http.MethodPost)
	dev.HandleFunc("/DeleteDeviceFromBoard", h.deleteDevice).Methods(http.MethodDelete)
	dev.HandleFunc("/GetDevicesByBoard/{boardId}", h.getDevices).Methods(http.MethodGet)
	dev.HandleFunc("/UpdateDeviceStatus", h.updateDeviceStatus).Methods(http.MethodPut)
}

func (h *Handler) addBoard(w http.ResponseWriter, r *http.Request) {
	var req application.AddBoardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	board, err := h.service.AddBoard(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, board)
}

func (h *Handler) updateBoard(w http.ResponseWriter, r *http.Request) {
	var req application.UpdateBoardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	board, err := h.service.UpdateBoard(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, board)
}

func (h *Handler) deleteBoard(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathBoardID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteBoard(r.Context(), boardID); err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, map[string]int64{"boardId": boardID})
}

func (h *Handler) getBoard(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathBoardID(w, r)
	if !ok {
		return
	}
	board, err := h.service.GetBoard(r.Context(), boardID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, board)
}

func (h *Handler) getBoardsByLocation(w http.ResponseWriter, r *http.Request) {
	boards, err := h.service.GetBoardsByLocation(r.Context(), mux.Vars(r)["locationCode"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, boards)
}

func (h *Handler) getBoardReport(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathBoardID(w, r)
	if !ok {
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "xlsx"
	}
	if format != "xlsx" && format != "pdf" {
		envelope.WriteCode(w, envelope.CodeInvalidRequest, "format must be xlsx or pdf")
		return
	}
	report, err := h.service.Report(r.Context(), boardID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var (
		data        []byte
		contentType string
	)
	if format == "pdf" {
		data, err = BuildBoardReportPDF(report)
		contentType = "application/pdf"
	} else {
		data, err = BuildBoardReportXLSX(report)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	metrics.IncReportExport(format, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=board-%d.%s", boardID, format))
	_, _ = w.Write(data)
}

func (h *Handler) addTest(w http.ResponseWriter, r *http.Request) {
	var req application.AddTestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	board, err := h.service.AddTest(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, board)
}

func (h *Handler) stopTest(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathBoardID(w, r)
	if !ok {
		return
	}
	board, err := h.service.StopTest(r.Context(), boardID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, board)
}

func (h *Handler) clearTest(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathBoardID(w, r)
	if !ok {
		return
	}
	board, err := h.service.ClearTest(r.Context(), boardID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, board)
}

func (h *Handler) stopIfComplete(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathBoardID(w, r)
	if !ok {
		return
	}
	result, err := h.service.StopIfComplete(r.Context(), boardID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, result)
}

func (h *Handler) saveDevice(w http.ResponseWriter, r *http.Request) {
	var req application.SaveDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	device, err := h.service.AttachDevice(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, device)
}

func (h *Handler) deleteDevice(w http.ResponseWriter, r *http.Request) {
	boardID, err := strconv.ParseInt(r.URL.Query().Get("boardId"), 10, 64)
	if err != nil || boardID <= 0 {
		envelope.WriteCode(w, envelope.CodeInvalidRequest, "boardId must be a positive integer")
		return
	}
	board, err := h.service.DetachDevice(r.Context(), boardID, r.URL.Query().Get("serialNumber"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, board)
}

func (h *Handler) getDevices(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathBoardID(w, r)
	if !ok {
		return
	}
	devices, err := h.service.ListDevices(r.Context(), boardID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, devices)
}

func (h *Handler) updateDeviceStatus(w http.ResponseWriter, r *http.Request) {
	var req application.StatusReport
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Source = metrics.SourceHTTP
	device, err := h.service.ReportDeviceStatus(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	envelope.WriteData(w, device)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := ErrorCode(err)
	if code == envelope.CodeInternalError {
		h.logger.Printf("benchtest handler: %v", err)
		envelope.WriteCode(w, code, "internal error")
		return
	}
	envelope.WriteCode(w, code, err.Error())
}

// ErrorCode maps bench test errors to envelope codes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, benchtest.ErrInvalidRequest):
		return envelope.CodeInvalidRequest
	case errors.Is(err, benchtest.ErrInvalidTransition), errors.Is(err, benchtest.ErrStatusConflict):
		return envelope.CodeInvalidTransition
	case errors.Is(err, benchtest.ErrBoardNotFound), errors.Is(err, benchtest.ErrDeviceNotFound):
		return envelope.CodeNotFound
	default:
		return envelope.CodeInternalError
	}
}

func pathBoardID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	boardID, err := strconv.ParseInt(mux.Vars(r)["boardId"], 10, 64)
	if err != nil || boardID <= 0 {
		envelope.WriteCode(w, envelope.CodeInvalidRequest, "boardId must be a positive integer")
		return 0, false
	}
	return boardID, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		envelope.WriteCode(w, envelope.CodeInvalidRequest, "invalid json body")
		return false
	}
	return true
}

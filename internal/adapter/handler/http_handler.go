package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

type HTTPHandler struct {
	txService *service.TransactionService
	logger    *zap.Logger
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewHTTPHandler(txService *service.TransactionService, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{txService: txService, logger: logger}
}

func (h *HTTPHandler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/transactions", h.CreateTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions", h.ListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", h.GetTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", h.EditTransaction).Methods(http.MethodPatch)
	api.HandleFunc("/transactions/{id}", h.DeleteTransaction).Methods(http.MethodDelete)
	api.HandleFunc("/transactions/{id}/status", h.UpdateStatus).Methods(http.MethodPut)
	api.HandleFunc("/adjustments", h.AdjustInventory).Methods(http.MethodPost)
	api.HandleFunc("/stock/low", h.ListLowStock).Methods(http.MethodGet)
	api.HandleFunc("/stock/out", h.ListOutOfStock).Methods(http.MethodGet)
	api.HandleFunc("/stock/{productId}/{warehouseId}", h.GetQuantity).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}/stock", h.GetAggregateStock).Methods(http.MethodGet)
	return r
}

func (h *HTTPHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: "invalid request body"})
		return
	}

	txn, err := h.txService.CreateTransaction(r.Context(), req.toService())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: newTransactionResponse(txn)})
}

func (h *HTTPHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	txn, err := h.txService.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: newTransactionResponse(txn)})
}

func (h *HTTPHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.TransactionFilter{
		Status: domain.TransactionStatus(q.Get("status")),
		Type:   domain.TransactionType(q.Get("type")),
	}
	if raw := q.Get("product_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, APIResponse{Message: "invalid product_id"})
			return
		}
		filter.ProductID = uuid.NullUUID{UUID: id, Valid: true}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, APIResponse{Message: "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	txns, err := h.txService.ListTransactions(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]TransactionResponse, 0, len(txns))
	for i := range txns {
		out = append(out, newTransactionResponse(&txns[i]))
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

func (h *HTTPHandler) EditTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req EditTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: "invalid request body"})
		return
	}

	txn, err := h.txService.EditTransaction(r.Context(), id, req.toService())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: newTransactionResponse(txn)})
}

func (h *HTTPHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: "invalid request body"})
		return
	}

	txn, err := h.txService.UpdateTransactionStatus(r.Context(), id, domain.TransactionStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: newTransactionResponse(txn)})
}

func (h *HTTPHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.txService.DeleteTransaction(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "transaction deleted"})
}

func (h *HTTPHandler) AdjustInventory(w http.ResponseWriter, r *http.Request) {
	var req AdjustInventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: "invalid request body"})
		return
	}

	res, err := h.txService.AdjustInventory(r.Context(), req.ProductID, req.WarehouseID, req.Delta)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: newAdjustmentResponse(res)})
}

func (h *HTTPHandler) GetQuantity(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathUUID(w, r, "productId")
	if !ok {
		return
	}
	warehouseID, ok := pathUUID(w, r, "warehouseId")
	if !ok {
		return
	}

	qty, err := h.txService.Ledger().GetQuantity(r.Context(), productID, warehouseID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: StockResponse{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    qty,
	}})
}

func (h *HTTPHandler) GetAggregateStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	total, err := h.txService.Projection().GetAggregateStock(r.Context(), productID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: AggregateResponse{ProductID: productID, AggregateStock: total}})
}

func (h *HTTPHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	threshold, err := strconv.ParseInt(r.URL.Query().Get("threshold"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: "invalid threshold"})
		return
	}

	records, err := h.txService.Ledger().ListLowStock(r.Context(), threshold)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: newStockResponses(records)})
}

func (h *HTTPHandler) ListOutOfStock(w http.ResponseWriter, r *http.Request) {
	records, err := h.txService.Ledger().ListOutOfStock(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: newStockResponses(records)})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		message = "internal error"
	}
	writeJSON(w, status, APIResponse{Message: message})
}

func httpStatus(err error) int {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsConflict(err):
		return http.StatusConflict
	case domain.IsInvalidOperation(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

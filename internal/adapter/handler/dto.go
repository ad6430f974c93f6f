package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

type CreateTransactionRequest struct {
	RequestID              string          `json:"request_id"`
	Number                 string          `json:"number"`
	Type                   string          `json:"type"`
	Status                 string          `json:"status"`
	ProductID              uuid.UUID       `json:"product_id"`
	Quantity               int64           `json:"quantity"`
	UnitPrice              decimal.Decimal `json:"unit_price"`
	WarehouseID            uuid.UUID       `json:"warehouse_id"`
	SourceWarehouseID      *uuid.UUID      `json:"source_warehouse_id,omitempty"`
	DestinationWarehouseID *uuid.UUID      `json:"destination_warehouse_id,omitempty"`
	Notes                  string          `json:"notes"`
}

func (r CreateTransactionRequest) toService() service.CreateTransactionRequest {
	return service.CreateTransactionRequest{
		RequestID:              r.RequestID,
		Number:                 r.Number,
		Type:                   domain.TransactionType(r.Type),
		Status:                 domain.TransactionStatus(r.Status),
		ProductID:              r.ProductID,
		Quantity:               r.Quantity,
		UnitPrice:              r.UnitPrice,
		WarehouseID:            r.WarehouseID,
		SourceWarehouseID:      nullUUID(r.SourceWarehouseID),
		DestinationWarehouseID: nullUUID(r.DestinationWarehouseID),
		Notes:                  r.Notes,
	}
}

type EditTransactionRequest struct {
	Type                   *string          `json:"type,omitempty"`
	Status                 *string          `json:"status,omitempty"`
	ProductID              *uuid.UUID       `json:"product_id,omitempty"`
	Quantity               *int64           `json:"quantity,omitempty"`
	UnitPrice              *decimal.Decimal `json:"unit_price,omitempty"`
	WarehouseID            *uuid.UUID       `json:"warehouse_id,omitempty"`
	SourceWarehouseID      *uuid.UUID       `json:"source_warehouse_id,omitempty"`
	DestinationWarehouseID *uuid.UUID       `json:"destination_warehouse_id,omitempty"`
	Notes                  *string          `json:"notes,omitempty"`
}

func (r EditTransactionRequest) toService() service.TransactionEdit {
	edit := service.TransactionEdit{
		ProductID:              r.ProductID,
		Quantity:               r.Quantity,
		UnitPrice:              r.UnitPrice,
		WarehouseID:            r.WarehouseID,
		SourceWarehouseID:      r.SourceWarehouseID,
		DestinationWarehouseID: r.DestinationWarehouseID,
		Notes:                  r.Notes,
	}
	if r.Type != nil {
		t := domain.TransactionType(*r.Type)
		edit.Type = &t
	}
	if r.Status != nil {
		s := domain.TransactionStatus(*r.Status)
		edit.Status = &s
	}
	return edit
}

type UpdateStatusRequest struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

type AdjustInventoryRequest struct {
	ProductID   uuid.UUID `json:"product_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Delta       int64     `json:"delta"`
}

type TransactionResponse struct {
	ID                     uuid.UUID       `json:"id"`
	Number                 string          `json:"number"`
	Type                   string          `json:"type"`
	Status                 string          `json:"status"`
	ProductID              uuid.UUID       `json:"product_id"`
	Quantity               int64           `json:"quantity"`
	UnitPrice              decimal.Decimal `json:"unit_price"`
	WarehouseID            uuid.UUID       `json:"warehouse_id"`
	SourceWarehouseID      *uuid.UUID      `json:"source_warehouse_id,omitempty"`
	DestinationWarehouseID *uuid.UUID      `json:"destination_warehouse_id,omitempty"`
	Notes                  string          `json:"notes"`
	Version                int             `json:"version"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

func newTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                     t.ID,
		Number:                 t.Number,
		Type:                   string(t.Type),
		Status:                 string(t.Status),
		ProductID:              t.ProductID,
		Quantity:               t.Quantity,
		UnitPrice:              t.UnitPrice,
		WarehouseID:            t.WarehouseID,
		SourceWarehouseID:      uuidPtr(t.SourceWarehouseID),
		DestinationWarehouseID: uuidPtr(t.DestinationWarehouseID),
		Notes:                  t.Notes,
		Version:                t.Version,
		CreatedAt:              t.CreatedAt,
		UpdatedAt:              t.UpdatedAt,
	}
}

type StockResponse struct {
	ProductID   uuid.UUID `json:"product_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Quantity    int64     `json:"quantity"`
}

func newStockResponses(records []domain.StockRecord) []StockResponse {
	out := make([]StockResponse, 0, len(records))
	for _, r := range records {
		out = append(out, StockResponse{ProductID: r.ProductID, WarehouseID: r.WarehouseID, Quantity: r.Quantity})
	}
	return out
}

type AdjustmentResponse struct {
	ProductID   uuid.UUID `json:"product_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Before      int64     `json:"before"`
	After       int64     `json:"after"`
	Clamped     bool      `json:"clamped"`
}

func newAdjustmentResponse(res domain.DeltaResult) AdjustmentResponse {
	return AdjustmentResponse{
		ProductID:   res.Key.ProductID,
		WarehouseID: res.Key.WarehouseID,
		Before:      res.Before,
		After:       res.After,
		Clamped:     res.Clamped,
	}
}

type AggregateResponse struct {
	ProductID      uuid.UUID `json:"product_id"`
	AggregateStock int64     `json:"aggregate_stock"`
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}

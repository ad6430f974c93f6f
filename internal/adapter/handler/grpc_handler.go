package handler

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

const ledgerServiceName = "stockledger.v1.Ledger"

// LedgerServer exchanges google.protobuf.Struct payloads whose fields match the JSON DTOs.
type LedgerServer interface {
	CreateTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	UpdateTransactionStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	EditTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AdjustInventory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type GRPCHandler struct {
	txService *service.TransactionService
}

func NewGRPCHandler(txService *service.TransactionService) *GRPCHandler {
	return &GRPCHandler{txService: txService}
}

var _ LedgerServer = (*GRPCHandler)(nil)

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateTransaction", LedgerServer.CreateTransaction),
		unaryMethod("UpdateTransactionStatus", LedgerServer.UpdateTransactionStatus),
		unaryMethod("EditTransaction", LedgerServer.EditTransaction),
		unaryMethod("DeleteTransaction", LedgerServer.DeleteTransaction),
		unaryMethod("AdjustInventory", LedgerServer.AdjustInventory),
		unaryMethod("GetStock", LedgerServer.GetStock),
	},
	Metadata: "stockledger/v1/ledger.proto",
}

func unaryMethod(name string, call func(LedgerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + ledgerServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(LedgerServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func (h *GRPCHandler) CreateTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in CreateTransactionRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	txn, err := h.txService.CreateTransaction(ctx, in.toService())
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeStruct(newTransactionResponse(txn))
}

func (h *GRPCHandler) UpdateTransactionStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in UpdateStatusRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	txn, err := h.txService.UpdateTransactionStatus(ctx, in.ID, domain.TransactionStatus(in.Status))
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeStruct(newTransactionResponse(txn))
}

func (h *GRPCHandler) EditTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID uuid.UUID `json:"id"`
		EditTransactionRequest
	}
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	txn, err := h.txService.EditTransaction(ctx, in.ID, in.EditTransactionRequest.toService())
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeStruct(newTransactionResponse(txn))
}

func (h *GRPCHandler) DeleteTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID uuid.UUID `json:"id"`
	}
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	if err := h.txService.DeleteTransaction(ctx, in.ID); err != nil {
		return nil, grpcError(err)
	}
	return encodeStruct(map[string]interface{}{"deleted": true})
}

func (h *GRPCHandler) AdjustInventory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in AdjustInventoryRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	res, err := h.txService.AdjustInventory(ctx, in.ProductID, in.WarehouseID, in.Delta)
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeStruct(newAdjustmentResponse(res))
}

func (h *GRPCHandler) GetStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ProductID   uuid.UUID `json:"product_id"`
		WarehouseID uuid.UUID `json:"warehouse_id"`
	}
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	qty, err := h.txService.Ledger().GetQuantity(ctx, in.ProductID, in.WarehouseID)
	if err != nil {
		return nil, grpcError(err)
	}
	total, err := h.txService.Projection().GetAggregateStock(ctx, in.ProductID)
	if err != nil {
		return nil, grpcError(err)
	}
	return encodeStruct(map[string]interface{}{
		"product_id":      in.ProductID.String(),
		"warehouse_id":    in.WarehouseID.String(),
		"quantity":        qty,
		"aggregate_stock": total,
	})
}

func decodeStruct(in *structpb.Struct, out interface{}) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func encodeStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func grpcError(err error) error {
	switch {
	case domain.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case domain.IsConflict(err):
		return status.Error(codes.AlreadyExists, err.Error())
	case domain.IsInvalidOperation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}

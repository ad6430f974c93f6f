package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	idempotencyKeyPrefix = "txn-request:"
	defaultListLimit     = 100
	maxListLimit         = 1000
)

type Options struct {
	// QueueSize is the event buffer; zero disables events.
	QueueSize      int
	NumberAttempts int
}

type CreateTransactionRequest struct {
	// RequestID makes the create call idempotent when a cache is configured.
	RequestID string
	// Number overrides the generated transaction number.
	Number                 string
	Type                   domain.TransactionType
	Status                 domain.TransactionStatus
	ProductID              uuid.UUID
	Quantity               int64
	UnitPrice              decimal.Decimal
	WarehouseID            uuid.UUID
	SourceWarehouseID      uuid.NullUUID
	DestinationWarehouseID uuid.NullUUID
	Notes                  string
}

// TransactionEdit holds the fields to change; nil means keep.
type TransactionEdit struct {
	Type                   *domain.TransactionType
	Status                 *domain.TransactionStatus
	ProductID              *uuid.UUID
	Quantity               *int64
	UnitPrice              *decimal.Decimal
	WarehouseID            *uuid.UUID
	SourceWarehouseID      *uuid.UUID
	DestinationWarehouseID *uuid.UUID
	Notes                  *string
}

func (e TransactionEdit) apply(t *domain.Transaction) {
	if e.Type != nil {
		t.Type = *e.Type
	}
	if e.Status != nil {
		t.Status = *e.Status
	}
	if e.ProductID != nil {
		t.ProductID = *e.ProductID
	}
	if e.Quantity != nil {
		t.Quantity = *e.Quantity
	}
	if e.UnitPrice != nil {
		t.UnitPrice = *e.UnitPrice
	}
	if e.WarehouseID != nil {
		t.WarehouseID = *e.WarehouseID
	}
	if e.SourceWarehouseID != nil {
		t.SourceWarehouseID = uuid.NullUUID{UUID: *e.SourceWarehouseID, Valid: true}
	}
	if e.DestinationWarehouseID != nil {
		t.DestinationWarehouseID = uuid.NullUUID{UUID: *e.DestinationWarehouseID, Valid: true}
	}
	if e.Notes != nil {
		t.Notes = *e.Notes
	}
}

// TransactionService drives the transaction state machine. Every call that changes the ledger
// runs its log write, stock legs and aggregate recompute in one storage transaction.
type TransactionService struct {
	db         port.DatabaseRepository
	cache      port.CacheRepository
	ledger     *StockLedger
	projection *Projection
	numbers    *NumberGenerator
	logger     *zap.Logger
	now        func() time.Time

	// eventsMu guards closing events against in-flight sends
	eventsMu sync.RWMutex
	events   chan domain.StockChanged
	closed   bool
}

// NewTransactionService wires the orchestrator. cache may be nil.
func NewTransactionService(db port.DatabaseRepository, cache port.CacheRepository, logger *zap.Logger, opts Options) *TransactionService {
	s := &TransactionService{
		db:         db,
		cache:      cache,
		ledger:     NewStockLedger(db, logger),
		projection: NewProjection(db, cache, logger),
		numbers:    NewNumberGenerator(cache, opts.NumberAttempts),
		logger:     logger,
		now:        time.Now,
	}
	if opts.QueueSize > 0 {
		s.events = make(chan domain.StockChanged, opts.QueueSize)
	}
	return s
}

func (s *TransactionService) Ledger() *StockLedger {
	return s.ledger
}

func (s *TransactionService) Projection() *Projection {
	return s.projection
}

func (s *TransactionService) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*domain.Transaction, error) {
	now := s.now().UTC()
	status := req.Status
	if status == "" {
		status = domain.TransactionStatusPending
	}

	txn := domain.Transaction{
		ID:                     uuid.New(),
		Type:                   req.Type,
		Status:                 status,
		ProductID:              req.ProductID,
		Quantity:               req.Quantity,
		UnitPrice:              req.UnitPrice,
		WarehouseID:            req.WarehouseID,
		SourceWarehouseID:      req.SourceWarehouseID,
		DestinationWarehouseID: req.DestinationWarehouseID,
		Notes:                  req.Notes,
		Version:                1,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	txn.Normalize()
	if err := txn.Validate(); err != nil {
		return nil, err
	}

	idempotencyKey := ""
	if req.RequestID != "" && s.cache != nil {
		idempotencyKey = idempotencyKeyPrefix + req.RequestID
		ok, err := s.cache.SetIdempotency(ctx, idempotencyKey)
		if err != nil {
			return nil, errors.Wrap(err, "idempotency check failed")
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
	}

	_, err := s.commit(ctx, &txn.ID, func(tx port.LedgerTx) ([]domain.Leg, error) {
		if err := verifyReferences(ctx, tx, txn); err != nil {
			return nil, err
		}
		if req.Number != "" {
			txn.Number = req.Number
			if err := tx.InsertTransaction(ctx, &txn); err != nil {
				return nil, err
			}
		} else if err := s.numbers.Insert(ctx, tx, &txn); err != nil {
			return nil, err
		}
		if !txn.IsCompleted() {
			return nil, nil
		}
		return txn.Forward().Legs, nil
	})
	if err != nil {
		if idempotencyKey != "" {
			if clearErr := s.cache.ClearIdempotency(ctx, idempotencyKey); clearErr != nil {
				s.logger.Warn("failed to release idempotency key", zap.String("key", idempotencyKey), zap.Error(clearErr))
			}
		}
		return nil, err
	}

	s.logger.Info("transaction created",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("number", txn.Number),
		zap.String("type", string(txn.Type)),
		zap.String("status", string(txn.Status)),
	)
	return &txn, nil
}

// UpdateTransactionStatus applies the movement on entry into Completed and reverses it on
// exit. Setting the current status again changes nothing.
func (s *TransactionService) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) (*domain.Transaction, error) {
	if !status.Valid() {
		return nil, errors.Wrapf(domain.ErrInvalidStatus, "status %q", status)
	}

	var out domain.Transaction
	_, err := s.commit(ctx, &id, func(tx port.LedgerTx) ([]domain.Leg, error) {
		cur, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur.Status == status {
			out = *cur
			return nil, nil
		}

		var legs []domain.Leg
		switch {
		case status == domain.TransactionStatusCompleted:
			legs = cur.Forward().Legs
		case cur.IsCompleted():
			legs = cur.Reverse().Legs
		}

		cur.Status = status
		cur.UpdatedAt = s.now().UTC()
		if err := tx.UpdateTransaction(ctx, cur); err != nil {
			return nil, err
		}
		out = *cur
		return legs, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// EditTransaction replaces fields of an existing transaction. A Completed transaction is
// reversed with its stored values first; the edited one is applied if it ends up Completed.
// Edits that only touch notes or price leave the ledger alone.
func (s *TransactionService) EditTransaction(ctx context.Context, id uuid.UUID, edit TransactionEdit) (*domain.Transaction, error) {
	var out domain.Transaction
	_, err := s.commit(ctx, &id, func(tx port.LedgerTx) ([]domain.Leg, error) {
		cur, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return nil, err
		}

		next := *cur
		edit.apply(&next)
		next.Normalize()
		if err := next.Validate(); err != nil {
			return nil, err
		}
		if err := verifyReferences(ctx, tx, next); err != nil {
			return nil, err
		}

		// an edit that leaves the movement untouched must not round-trip through the zero floor
		var legs []domain.Leg
		if !cur.SameLedgerEffect(next) {
			if cur.IsCompleted() {
				legs = append(legs, cur.Reverse().Legs...)
			}
			if next.IsCompleted() {
				legs = append(legs, next.Forward().Legs...)
			}
		}

		next.UpdatedAt = s.now().UTC()
		if err := tx.UpdateTransaction(ctx, &next); err != nil {
			return nil, err
		}
		out = next
		return legs, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *TransactionService) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	_, err := s.commit(ctx, &id, func(tx port.LedgerTx) ([]domain.Leg, error) {
		cur, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteTransaction(ctx, id); err != nil {
			return nil, err
		}
		if !cur.IsCompleted() {
			return nil, nil
		}
		return cur.Reverse().Legs, nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("transaction deleted", zap.String("transaction_id", id.String()))
	return nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.db.GetTransaction(ctx, id)
}

func (s *TransactionService) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.db.ListTransactions(ctx, filter)
}

// commit runs fn and the legs it returns as one storage transaction, then refreshes the
// aggregate cache and queues events. fn may run more than once if the store retries.
func (s *TransactionService) commit(ctx context.Context, txnID *uuid.UUID, fn func(tx port.LedgerTx) ([]domain.Leg, error)) ([]domain.DeltaResult, error) {
	var (
		results []domain.DeltaResult
		totals  []domain.AggregateStock
	)
	err := s.db.WithinTx(ctx, func(tx port.LedgerTx) error {
		results, totals = nil, nil

		legs, err := fn(tx)
		if err != nil {
			return err
		}
		if len(legs) == 0 {
			return nil
		}

		results, err = s.ledger.ApplyLegs(ctx, tx, legs)
		if err != nil {
			return err
		}
		totals, err = s.projection.Recompute(ctx, tx, touchedProducts(legs))
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrReconciliation) {
			fields := []zap.Field{zap.Error(err)}
			if txnID != nil {
				fields = append(fields, zap.String("transaction_id", txnID.String()))
			}
			s.logger.Error("ledger reconciliation required", fields...)
		}
		return nil, err
	}

	s.projection.Publish(ctx, totals)
	s.emit(ctx, txnID, results, totals)
	return results, nil
}

func (s *TransactionService) emit(ctx context.Context, txnID *uuid.UUID, results []domain.DeltaResult, totals []domain.AggregateStock) {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	if s.events == nil || s.closed {
		return
	}

	aggregate := make(map[uuid.UUID]int64, len(totals))
	for _, t := range totals {
		aggregate[t.ProductID] = t.Total
	}

	now := s.now().UTC()
	for _, res := range results {
		if res.NoOp {
			continue
		}
		event := domain.StockChanged{
			ProductID:      res.Key.ProductID,
			WarehouseID:    res.Key.WarehouseID,
			TransactionID:  txnID,
			Delta:          res.Delta,
			Before:         res.Before,
			After:          res.After,
			Clamped:        res.Clamped,
			AggregateStock: aggregate[res.Key.ProductID],
			OccurredAt:     now,
		}
		select {
		case s.events <- event:
		case <-ctx.Done():
			s.logger.Warn("dropping stock events, context done", zap.Error(ctx.Err()))
			return
		}
	}
}

func verifyReferences(ctx context.Context, tx port.LedgerTx, txn domain.Transaction) error {
	if _, err := tx.GetProduct(ctx, txn.ProductID); err != nil {
		return err
	}
	for _, id := range txn.WarehouseIDs() {
		if _, err := tx.GetWarehouse(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *TransactionService) Events() <-chan domain.StockChanged {
	return s.events
}

// Close stops event delivery. Changes committed afterwards are not announced.
func (s *TransactionService) Close() {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if s.events != nil && !s.closed {
		close(s.events)
	}
	s.closed = true
}

package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransfer(src, dst uuid.UUID, qty int64) Transaction {
	return Transaction{
		ID:                     uuid.New(),
		Type:                   TransactionTypeTransfer,
		Status:                 TransactionStatusCompleted,
		ProductID:              uuid.New(),
		Quantity:               qty,
		SourceWarehouseID:      uuid.NullUUID{UUID: src, Valid: true},
		DestinationWarehouseID: uuid.NullUUID{UUID: dst, Valid: true},
	}
}

func TestForward_SingleLegTypes(t *testing.T) {
	productID, warehouseID := uuid.New(), uuid.New()
	key := StockKey{ProductID: productID, WarehouseID: warehouseID}

	cases := []struct {
		typ   TransactionType
		qty   int64
		delta int64
	}{
		{TransactionTypePurchase, 10, 10},
		{TransactionTypeSale, 4, -4},
		{TransactionTypeAdjustment, -3, -3},
		{TransactionTypeAdjustment, 7, 7},
	}
	for _, tc := range cases {
		t.Run(string(tc.typ), func(t *testing.T) {
			txn := Transaction{Type: tc.typ, ProductID: productID, WarehouseID: warehouseID, Quantity: tc.qty}

			fwd := txn.Forward()
			require.Len(t, fwd.Legs, 1)
			assert.Equal(t, Leg{Key: key, Delta: tc.delta}, fwd.Legs[0])

			rev := txn.Reverse()
			require.Len(t, rev.Legs, 1)
			assert.Equal(t, Leg{Key: key, Delta: -tc.delta}, rev.Legs[0])
		})
	}
}

func TestForward_TransferMovesBetweenWarehouses(t *testing.T) {
	src, dst := uuid.New(), uuid.New()
	txn := newTransfer(src, dst, 5)

	fwd := txn.Forward()
	require.Len(t, fwd.Legs, 2)
	assert.Equal(t, txn.ID, fwd.TransactionID)
	assert.Equal(t, StockKey{ProductID: txn.ProductID, WarehouseID: src}, fwd.Legs[0].Key)
	assert.Equal(t, int64(-5), fwd.Legs[0].Delta)
	assert.Equal(t, StockKey{ProductID: txn.ProductID, WarehouseID: dst}, fwd.Legs[1].Key)
	assert.Equal(t, int64(5), fwd.Legs[1].Delta)

	rev := txn.Reverse()
	require.Len(t, rev.Legs, 2)
	assert.Equal(t, int64(5), rev.Legs[0].Delta)
	assert.Equal(t, int64(-5), rev.Legs[1].Delta)
}

func TestNumberPrefix(t *testing.T) {
	assert.Equal(t, "PO", TransactionTypePurchase.NumberPrefix())
	assert.Equal(t, "SO", TransactionTypeSale.NumberPrefix())
	assert.Equal(t, "ADJ", TransactionTypeAdjustment.NumberPrefix())
	assert.Equal(t, "TRF", TransactionTypeTransfer.NumberPrefix())
	assert.Empty(t, TransactionType("refund").NumberPrefix())
}

func TestNormalize(t *testing.T) {
	t.Run("transfer uses source as primary warehouse", func(t *testing.T) {
		src, dst := uuid.New(), uuid.New()
		txn := newTransfer(src, dst, 1)
		txn.WarehouseID = uuid.New()

		txn.Normalize()
		assert.Equal(t, src, txn.WarehouseID)
	})

	t.Run("other types drop transfer endpoints", func(t *testing.T) {
		txn := Transaction{
			Type:                   TransactionTypePurchase,
			WarehouseID:            uuid.New(),
			SourceWarehouseID:      uuid.NullUUID{UUID: uuid.New(), Valid: true},
			DestinationWarehouseID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
		}

		txn.Normalize()
		assert.False(t, txn.SourceWarehouseID.Valid)
		assert.False(t, txn.DestinationWarehouseID.Valid)
	})
}

func TestValidate(t *testing.T) {
	valid := func() Transaction {
		return Transaction{
			Type:        TransactionTypePurchase,
			Status:      TransactionStatusPending,
			ProductID:   uuid.New(),
			WarehouseID: uuid.New(),
			Quantity:    1,
			UnitPrice:   decimal.RequireFromString("9.99"),
		}
	}

	require.NoError(t, valid().Validate())

	cases := []struct {
		name   string
		mutate func(*Transaction)
		target error
	}{
		{"unknown type", func(t *Transaction) { t.Type = "refund" }, ErrInvalidType},
		{"unknown status", func(t *Transaction) { t.Status = "shipped" }, ErrInvalidStatus},
		{"missing product", func(t *Transaction) { t.ProductID = uuid.Nil }, ErrMissingReference},
		{"missing warehouse", func(t *Transaction) { t.WarehouseID = uuid.Nil }, ErrMissingReference},
		{"zero purchase", func(t *Transaction) { t.Quantity = 0 }, ErrInvalidQuantity},
		{"negative sale", func(t *Transaction) { t.Type = TransactionTypeSale; t.Quantity = -2 }, ErrInvalidQuantity},
		{"zero adjustment", func(t *Transaction) { t.Type = TransactionTypeAdjustment; t.Quantity = 0 }, ErrInvalidQuantity},
		{"negative price", func(t *Transaction) { t.UnitPrice = decimal.NewFromInt(-1) }, ErrInvalidPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			txn := valid()
			tc.mutate(&txn)
			assert.ErrorIs(t, txn.Validate(), tc.target)
		})
	}

	t.Run("negative adjustment allowed", func(t *testing.T) {
		txn := valid()
		txn.Type = TransactionTypeAdjustment
		txn.Quantity = -4
		assert.NoError(t, txn.Validate())
	})
}

func TestValidate_Transfer(t *testing.T) {
	src, dst := uuid.New(), uuid.New()

	txn := newTransfer(src, dst, 3)
	assert.NoError(t, txn.Validate())

	same := newTransfer(src, src, 3)
	assert.ErrorIs(t, same.Validate(), ErrInvalidTransfer)

	missing := newTransfer(src, dst, 3)
	missing.DestinationWarehouseID = uuid.NullUUID{}
	assert.ErrorIs(t, missing.Validate(), ErrInvalidTransfer)

	zero := newTransfer(src, dst, 0)
	assert.ErrorIs(t, zero.Validate(), ErrInvalidQuantity)
}

func TestWarehouseIDs(t *testing.T) {
	src, dst := uuid.New(), uuid.New()
	assert.Equal(t, []uuid.UUID{src, dst}, newTransfer(src, dst, 1).WarehouseIDs())

	w := uuid.New()
	sale := Transaction{Type: TransactionTypeSale, WarehouseID: w}
	assert.Equal(t, []uuid.UUID{w}, sale.WarehouseIDs())
}

func TestSameLedgerEffect(t *testing.T) {
	src, dst := uuid.New(), uuid.New()
	base := newTransfer(src, dst, 5)

	repriced := base
	repriced.Notes = "late delivery"
	repriced.UnitPrice = decimal.NewFromInt(3)
	assert.True(t, base.SameLedgerEffect(repriced))

	moreQty := base
	moreQty.Quantity = 6
	assert.False(t, base.SameLedgerEffect(moreQty))

	swapped := newTransfer(dst, src, 5)
	swapped.ProductID = base.ProductID
	assert.False(t, base.SameLedgerEffect(swapped))

	pending := base
	pending.Status = TransactionStatusPending
	assert.False(t, base.SameLedgerEffect(pending))

	cancelled := pending
	cancelled.Status = TransactionStatusCancelled
	assert.True(t, pending.SameLedgerEffect(cancelled))
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsNotFound(ErrWarehouseNotFound))
	assert.False(t, IsNotFound(ErrInvalidTransfer))
	assert.True(t, IsConflict(ErrDuplicateRequest))
	assert.True(t, IsInvalidOperation(ErrInvalidTransfer))
	assert.True(t, IsInvalidOperation(ErrDuplicateTransactionNumber))
	assert.False(t, IsInvalidOperation(ErrReconciliation))
}

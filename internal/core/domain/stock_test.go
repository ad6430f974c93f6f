package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestApplyClamped(t *testing.T) {
	cases := []struct {
		current, delta, want int64
		clamped              bool
	}{
		{10, 5, 15, false},
		{10, -10, 0, false},
		{10, -15, 0, true},
		{0, -1, 0, true},
		{3, 0, 3, false},
	}
	for _, tc := range cases {
		got, clamped := ApplyClamped(tc.current, tc.delta)
		assert.Equal(t, tc.want, got, "%d%+d", tc.current, tc.delta)
		assert.Equal(t, tc.clamped, clamped, "%d%+d", tc.current, tc.delta)
	}
}

func TestResolveDelta(t *testing.T) {
	key := StockKey{ProductID: uuid.New(), WarehouseID: uuid.New()}

	t.Run("absent record with positive delta is created", func(t *testing.T) {
		res := ResolveDelta(key, nil, 4)
		assert.True(t, res.Created)
		assert.Equal(t, int64(4), res.After)
	})

	t.Run("absent record with non-positive delta is a no-op", func(t *testing.T) {
		for _, delta := range []int64{0, -3} {
			res := ResolveDelta(key, nil, delta)
			assert.True(t, res.NoOp)
			assert.False(t, res.Created)
			assert.Zero(t, res.After)
		}
	})

	t.Run("existing record clamps at zero", func(t *testing.T) {
		res := ResolveDelta(key, &StockRecord{Quantity: 5}, -8)
		assert.Equal(t, int64(5), res.Before)
		assert.Zero(t, res.After)
		assert.True(t, res.Clamped)
	})
}

func TestStockKeyLess(t *testing.T) {
	p := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	w1 := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	w2 := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	p2 := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	assert.True(t, StockKey{p, w1}.Less(StockKey{p, w2}))
	assert.False(t, StockKey{p, w2}.Less(StockKey{p, w1}))
	assert.True(t, StockKey{p, w2}.Less(StockKey{p2, w1}))
	assert.False(t, StockKey{p, w1}.Less(StockKey{p, w1}))
}

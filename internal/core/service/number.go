package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const defaultNumberAttempts = 10

// NumberGenerator assigns transaction numbers of the form PREFIX-yyMMdd-NNNN.
type NumberGenerator struct {
	cache    port.CacheRepository
	attempts int
	now      func() time.Time
	suffix   func() int
}

func NewNumberGenerator(cache port.CacheRepository, attempts int) *NumberGenerator {
	if attempts <= 0 {
		attempts = defaultNumberAttempts
	}
	return &NumberGenerator{
		cache:    cache,
		attempts: attempts,
		now:      time.Now,
		suffix:   func() int { return rand.IntN(10000) },
	}
}

func (g *NumberGenerator) candidate(t domain.TransactionType) string {
	return fmt.Sprintf("%s-%s-%04d", t.NumberPrefix(), g.now().UTC().Format("060102"), g.suffix())
}

// Insert stores txn under a fresh number, retrying on collision. The cache reservation is a
// cheap first filter; the store's unique index is the authority.
func (g *NumberGenerator) Insert(ctx context.Context, tx port.LedgerTx, txn *domain.Transaction) error {
	for i := 0; i < g.attempts; i++ {
		number := g.candidate(txn.Type)

		if g.cache != nil {
			ok, err := g.cache.ReserveNumber(ctx, number)
			if err != nil {
				return errors.Wrap(err, "reserve transaction number")
			}
			if !ok {
				continue
			}
		}

		exists, err := tx.TransactionNumberExists(ctx, number)
		if err != nil {
			return errors.Wrap(err, "check transaction number")
		}
		if exists {
			continue
		}

		txn.Number = number
		err = tx.InsertTransaction(ctx, txn)
		if errors.Is(err, domain.ErrDuplicateTransactionNumber) {
			continue
		}
		return err
	}
	return errors.Wrapf(domain.ErrDuplicateTransactionNumber, "no free %s number after %d attempts", txn.Type.NumberPrefix(), g.attempts)
}

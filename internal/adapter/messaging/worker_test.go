package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.StockChanged
	fail   bool
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.StockChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestWorkerLoop_PublishesUntilClosed(t *testing.T) {
	events := make(chan domain.StockChanged, 10)
	pub := &recordingPublisher{}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			WorkerLoop(id, events, pub, zap.NewNop())
		}(i)
	}

	productID := uuid.New()
	for i := 0; i < 5; i++ {
		events <- domain.StockChanged{ProductID: productID, Delta: int64(i)}
	}
	close(events)
	wg.Wait()

	assert.Len(t, pub.events, 5)
}

func TestWorkerLoop_ContinuesAfterFailure(t *testing.T) {
	events := make(chan domain.StockChanged, 2)
	pub := &recordingPublisher{fail: true}

	events <- domain.StockChanged{ProductID: uuid.New()}
	events <- domain.StockChanged{ProductID: uuid.New()}
	close(events)

	WorkerLoop(0, events, pub, zap.NewNop())

	assert.Empty(t, pub.events)
}

func TestLogPublisher(t *testing.T) {
	pub := NewLogPublisher(zap.NewNop())
	assert.NoError(t, pub.Publish(context.Background(), domain.StockChanged{ProductID: uuid.New()}))
	assert.NoError(t, pub.Close())
}

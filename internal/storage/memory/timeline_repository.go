package memory

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errTimelineOrderRequired = errors.New("timeline event requires order id")

// timelineStore держит хронологию заказов в памяти процесса.
type timelineStore struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
	now    func() time.Time
}

// NewTimelineRepository создаёт in-memory хронологию заказов.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineStore{
		events: make(map[string][]domain.TimelineEvent),
		now:    time.Now,
	}
}

// Append вставляет событие по времени. Равные по времени события идут в порядке записи:
// сверка пишет StatusReported и CartCleared в одну миллисекунду.
func (r *timelineStore) Append(event domain.TimelineEvent) error {
	if strings.TrimSpace(event.OrderID) == "" {
		return errTimelineOrderRequired
	}
	if event.Occurred.IsZero() {
		event.Occurred = r.now()
	}
	event.Occurred = event.Occurred.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.events[event.OrderID]
	idx := sort.Search(len(events), func(i int) bool {
		return events[i].Occurred.After(event.Occurred)
	})
	events = append(events, domain.TimelineEvent{})
	copy(events[idx+1:], events[idx:])
	events[idx] = event
	r.events[event.OrderID] = events
	return nil
}

// List возвращает копию хронологии; неизвестный заказ даёт пустой список.
func (r *timelineStore) List(orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.TimelineEvent(nil), r.events[orderID]...), nil
}

var _ domain.TimelineRepository = (*timelineStore)(nil)

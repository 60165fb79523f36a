package httpapi

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultBusBuffer = 32

// Bus раздаёт навигационные события страницы оплаты подписчикам по заказу.
// Событие без order_id доставляется, только если открыт один заказ.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]chan domain.NavigationEvent
	nextID uint64
	buffer int
	logger *log.Entry
	now    func() time.Time
}

// NewBus создаёт шину. buffer<=0 означает размер по умолчанию.
func NewBus(buffer int, logger *log.Entry) *Bus {
	if buffer <= 0 {
		buffer = defaultBusBuffer
	}
	if logger == nil {
		logger = log.WithField("component", "navigation-bus")
	}
	return &Bus{
		subs:   make(map[string]map[uint64]chan domain.NavigationEvent),
		buffer: buffer,
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe открывает поток событий по заказу. unsubscribe закрывает поток и
// безопасен при повторном вызове.
func (b *Bus) Subscribe(orderID string) (<-chan domain.NavigationEvent, func()) {
	ch := make(chan domain.NavigationEvent, b.buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[orderID] == nil {
		b.subs[orderID] = make(map[uint64]chan domain.NavigationEvent)
	}
	b.subs[orderID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subs[orderID]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.subs, orderID)
				}
			}
			close(ch)
		})
	}
}

// Publish доставляет событие и возвращает число получателей. Переполненный
// подписчик событие теряет.
func (b *Bus) Publish(event domain.NavigationEvent) int {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = b.now().UTC()
	}
	orderID := event.OrderID
	if orderID == "" {
		orderID, _ = event.Params()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var targets []chan domain.NavigationEvent
	if orderID != "" {
		for _, ch := range b.subs[orderID] {
			targets = append(targets, ch)
		}
	} else if len(b.subs) > 1 {
		b.logger.WithFields(log.Fields{
			"orders": len(b.subs),
			"closed": event.Closed,
		}).Warn("Navigation event without order id matches several checkouts, dropped")
		return 0
	} else {
		for id, subs := range b.subs {
			orderID = id
			for _, ch := range subs {
				targets = append(targets, ch)
			}
		}
	}

	delivered := 0
	for _, ch := range targets {
		select {
		case ch <- event:
			delivered++
		default:
			b.logger.WithField("order_id", orderID).Warn("Navigation subscriber is full, event dropped")
		}
	}
	return delivered
}

// Subscribers возвращает число подписчиков по заказу.
func (b *Bus) Subscribers(orderID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[orderID])
}

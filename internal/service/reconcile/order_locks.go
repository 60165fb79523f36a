package reconcile

import "sync"

// orderLocks сериализует изменения статуса по идентификатору заказа.
// Запись удаляется, когда заказ больше никто не ждёт.
type orderLocks struct {
	mu    sync.Mutex
	locks map[string]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[string]*orderLock)}
}

func (o *orderLocks) lock(orderID string) func() {
	o.mu.Lock()
	l, ok := o.locks[orderID]
	if !ok {
		l = &orderLock{}
		o.locks[orderID] = l
	}
	l.refs++
	o.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		o.mu.Lock()
		defer o.mu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(o.locks, orderID)
		}
	}
}

func (o *orderLocks) size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.locks)
}

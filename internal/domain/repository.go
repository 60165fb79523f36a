package domain

// OrderRepository описывает требования к хранилищу истории заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderVersionConflict, если запись с таким ID уже существует.
	Create(order OrderRecord) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (OrderRecord, error)
	// ListByUser возвращает заказы пользователя, новые первыми, с опциональным ограничением.
	ListByUser(userID string, limit int) ([]OrderRecord, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order OrderRecord) error
}

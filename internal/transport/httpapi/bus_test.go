package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestBus_RoutesByOrderID(t *testing.T) {
	bus := NewBus(4, nil)
	first, unsubFirst := bus.Subscribe("order-1")
	defer unsubFirst()
	second, unsubSecond := bus.Subscribe("order-2")
	defer unsubSecond()

	delivered := bus.Publish(domain.NavigationEvent{OrderID: "order-1", URL: "https://shop.test/finish"})
	require.Equal(t, 1, delivered)

	event := <-first
	assert.Equal(t, "order-1", event.OrderID)
	assert.False(t, event.ReceivedAt.IsZero())
	assert.Empty(t, second)
}

func TestBus_RoutesByURLOrderID(t *testing.T) {
	bus := NewBus(4, nil)
	events, unsubscribe := bus.Subscribe("order-7")
	defer unsubscribe()

	delivered := bus.Publish(domain.NavigationEvent{URL: "https://shop.test/finish?order_id=order-7&transaction_status=settlement"})
	require.Equal(t, 1, delivered)

	_, status := (<-events).Params()
	assert.Equal(t, "settlement", status)
}

func TestBus_EventWithoutOrderGoesToSingleCheckout(t *testing.T) {
	bus := NewBus(4, nil)
	first, unsubFirst := bus.Subscribe("order-1")
	defer unsubFirst()
	again, unsubAgain := bus.Subscribe("order-1")
	defer unsubAgain()

	delivered := bus.Publish(domain.NavigationEvent{Closed: true})
	require.Equal(t, 2, delivered)
	assert.True(t, (<-first).Closed)
	assert.True(t, (<-again).Closed)
}

func TestBus_EventWithoutOrderIsDroppedWhenAmbiguous(t *testing.T) {
	bus := NewBus(4, nil)
	first, unsubFirst := bus.Subscribe("order-1")
	defer unsubFirst()
	second, unsubSecond := bus.Subscribe("order-2")
	defer unsubSecond()

	assert.Equal(t, 0, bus.Publish(domain.NavigationEvent{Closed: true}))
	assert.Equal(t, 0, bus.Publish(domain.NavigationEvent{URL: "https://shop.test/finish?transaction_status=settlement"}))
	assert.Empty(t, first)
	assert.Empty(t, second)
}

func TestBus_FullSubscriberDropsEvent(t *testing.T) {
	bus := NewBus(1, nil)
	events, unsubscribe := bus.Subscribe("order-1")
	defer unsubscribe()

	require.Equal(t, 1, bus.Publish(domain.NavigationEvent{OrderID: "order-1", URL: "a"}))
	require.Equal(t, 0, bus.Publish(domain.NavigationEvent{OrderID: "order-1", URL: "b"}))

	assert.Equal(t, "a", (<-events).URL)
}

func TestBus_UnsubscribeClosesStream(t *testing.T) {
	bus := NewBus(0, nil)
	events, unsubscribe := bus.Subscribe("order-1")
	require.Equal(t, 1, bus.Subscribers("order-1"))

	unsubscribe()
	unsubscribe()

	_, open := <-events
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers("order-1"))
	assert.Equal(t, 0, bus.Publish(domain.NavigationEvent{OrderID: "order-1"}))
}

package ros

import "testing"

func TestParamSubscriptionDeliversToAllCallbacks(t *testing.T) {
	sub := newParamSubscription("/robot/rate")

	var got1, got2 interface{}
	sub.addCallback(func(key string, value interface{}) { got1 = value })
	sub.addCallback(func(key string, value interface{}) { got2 = value })

	sub.deliver("/robot/rate", 5)

	if got1 != 5 || got2 != 5 {
		t.Fatalf("callbacks got (%v, %v), want (5, 5)", got1, got2)
	}
}

func TestParamSubscriptionDeliverWithNoCallbacksDoesNotPanic(t *testing.T) {
	sub := newParamSubscription("/robot/rate")
	sub.deliver("/robot/rate", 1)
}

func TestParamSubscriptionCachesLastValue(t *testing.T) {
	sub := newParamSubscription("/robot/rate")

	if _, ok := sub.cached(); ok {
		t.Fatalf("cached() reported a value before any delivery")
	}

	sub.deliver("/robot/rate", 5)
	sub.deliver("/robot/rate", 7)

	v, ok := sub.cached()
	if !ok || v != 7 {
		t.Fatalf("cached() = (%v, %v), want (7, true)", v, ok)
	}
}

package ros

import "sync"

// paramSubscription holds the callbacks registered against one subscribed
// parameter key, plus the last value the Master delivered — the {key,
// cached-value} shape spec.md §3's Parameter subscription entry names.
type paramSubscription struct {
	key string

	mu        sync.Mutex
	value     interface{}
	hasValue  bool
	callbacks []func(key string, value interface{})
}

func newParamSubscription(key string) *paramSubscription {
	return &paramSubscription{key: key}
}

func (s *paramSubscription) addCallback(cb func(key string, value interface{})) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// cached returns the last value delivered by the Master, if any.
func (s *paramSubscription) cached() (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.hasValue
}

// deliver updates the cached value and invokes every registered callback
// with the Master's paramUpdate payload. Invoked from the XMLRPC handler
// goroutine; callbacks that need to do slow work should hand off to their
// own goroutine instead of blocking the Master's call.
func (s *paramSubscription) deliver(key string, value interface{}) {
	s.mu.Lock()
	s.value = value
	s.hasValue = true
	callbacks := make([]func(key string, value interface{}), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(key, value)
	}
}

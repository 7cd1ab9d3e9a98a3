package link

import (
	"container/list"
	"sync"

	"github.com/golang/glog"
)

// Mux keeps channel subscriptions for adapters and dispatches inbound
// payloads to them. Dispatch must be called from a single receive
// goroutine per connection to keep per-channel ordering.
type Mux struct {
	lock sync.RWMutex
	subs map[ChannelID]*list.List
}

type muxSubscription struct {
	mux *Mux
	ch  ChannelID
	elm *list.Element
	h   Handler
}

// Subscribe adds a handler for a channel.
func (m *Mux) Subscribe(ch ChannelID, h Handler) (Subscription, error) {
	if !ch.Valid() {
		return nil, ErrInvalidChannel
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.subs == nil {
		m.subs = make(map[ChannelID]*list.List)
	}
	lst := m.subs[ch]
	if lst == nil {
		lst = list.New()
		m.subs[ch] = lst
	}
	sub := &muxSubscription{mux: m, ch: ch, h: h}
	sub.elm = lst.PushBack(sub)
	return sub, nil
}

// HasSubscribers reports whether any handler is registered on ch.
func (m *Mux) HasSubscribers(ch ChannelID) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	lst := m.subs[ch]
	return lst != nil && lst.Len() > 0
}

// Dispatch delivers payload to the handlers of ch.
func (m *Mux) Dispatch(ch ChannelID, payload []byte) {
	var handlers []Handler
	m.lock.RLock()
	if lst := m.subs[ch]; lst != nil {
		handlers = make([]Handler, 0, lst.Len())
		for elm := lst.Front(); elm != nil; elm = elm.Next() {
			handlers = append(handlers, elm.Value.(*muxSubscription).h)
		}
	}
	m.lock.RUnlock()
	if len(handlers) == 0 {
		glog.V(2).Infof("RCV %s: %d bytes, no subscriber", ch, len(payload))
		return
	}
	glog.V(2).Infof("RCV %s: %d bytes", ch, len(payload))
	for _, h := range handlers {
		h(ch, payload)
	}
}

// Close implements Subscription.
func (s *muxSubscription) Close() error {
	s.mux.lock.Lock()
	defer s.mux.lock.Unlock()
	if lst := s.mux.subs[s.ch]; lst != nil && s.elm != nil {
		lst.Remove(s.elm)
		s.elm = nil
		if lst.Len() == 0 {
			delete(s.mux.subs, s.ch)
		}
	}
	return nil
}

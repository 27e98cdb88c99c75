package cache

// Per-channel message segment.
//
// A segment keeps a map for O(1) lookup by message id and a container/list holding the
// same messages in arrival order, oldest at the front. The map and the list always hold
// the same set of ids, so eviction order never has to be rebuilt from the keyed table.
//
// Concurrency: a segment has no lock of its own. It lives inside a keyedmap entry and is
// only touched from View/Update callbacks, which hold that entry's lock.

import (
	"container/list"

	"github.com/small-frappuccino/discordstate/pkg/discord/model"
)

type segment struct {
	data  map[string]*list.Element
	order *list.List
}

func newSegment() *segment {
	return &segment{
		data:  make(map[string]*list.Element),
		order: list.New(),
	}
}

// Len returns the number of cached messages.
func (s *segment) Len() int {
	return len(s.data)
}

// Get returns the stored message for id. The pointer is owned by the segment.
func (s *segment) Get(id string) (*model.Message, bool) {
	el, ok := s.data[id]
	if !ok {
		return nil, false
	}
	return el.Value.(*model.Message), true
}

// Push appends m as the newest message. A message already present keeps its position
// and has its value replaced.
func (s *segment) Push(m *model.Message) {
	if el, ok := s.data[m.ID]; ok {
		el.Value = m
		return
	}
	s.data[m.ID] = s.order.PushBack(m)
}

// PopOldest removes and returns the message that arrived first.
func (s *segment) PopOldest() (*model.Message, bool) {
	front := s.order.Front()
	if front == nil {
		return nil, false
	}
	m := s.order.Remove(front).(*model.Message)
	delete(s.data, m.ID)
	return m, true
}

// Remove deletes the message with the given id.
func (s *segment) Remove(id string) (*model.Message, bool) {
	el, ok := s.data[id]
	if !ok {
		return nil, false
	}
	delete(s.data, id)
	return s.order.Remove(el).(*model.Message), true
}

// Messages returns clones of every message in arrival order.
func (s *segment) Messages() []*model.Message {
	out := make([]*model.Message, 0, len(s.data))
	for el := s.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*model.Message).Clone())
	}
	return out
}

// drain empties the segment and hands over its messages in arrival order.
func (s *segment) drain() []*model.Message {
	out := make([]*model.Message, 0, len(s.data))
	for el := s.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*model.Message))
	}
	clear(s.data)
	s.order.Init()
	return out
}

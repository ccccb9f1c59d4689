// Package stream carries model output chunks from the engine to whoever
// renders a conversation, and holds the per-conversation abort flags.
package stream

import (
	"sync"
)

const bufferSize = 256

// Chunk is one piece of streamed text. The final chunk of a turn has Done
// set and no text.
type Chunk struct {
	ConversationID string
	Text           string
	Done           bool
}

type conversation struct {
	sub     *subscription
	abort   chan struct{}
	aborted bool
}

// subscription owns one chunk channel. The channel is closed only after
// every sender that saw the subscription attached has returned.
type subscription struct {
	ch      chan Chunk
	closing chan struct{}
	senders sync.WaitGroup
}

func newSubscription() *subscription {
	return &subscription{ch: make(chan Chunk, bufferSize), closing: make(chan struct{})}
}

// Hub is safe for concurrent use. Each conversation has at most one
// subscriber.
type Hub struct {
	mu    sync.Mutex
	convs map[string]*conversation
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{convs: make(map[string]*conversation)}
}

func (h *Hub) get(id string) *conversation {
	c, ok := h.convs[id]
	if !ok {
		c = &conversation{abort: make(chan struct{})}
		h.convs[id] = c
	}
	return c
}

// Subscribe returns the chunk channel for a conversation, replacing any
// previous subscription. The channel is closed after the Done chunk.
func (h *Hub) Subscribe(id string) <-chan Chunk {
	h.mu.Lock()
	c := h.get(id)
	old := c.sub
	c.sub = newSubscription()
	ch := c.sub.ch
	h.mu.Unlock()

	if old != nil {
		close(old.closing)
		old.senders.Wait()
		close(old.ch)
	}
	return ch
}

// EmitChunk delivers text to the subscriber. It blocks while the buffer is
// full and returns early if the conversation is aborted or the
// subscription is replaced. Without a subscriber the chunk is dropped.
func (h *Hub) EmitChunk(id, text string) {
	h.mu.Lock()
	c, ok := h.convs[id]
	if !ok || c.sub == nil || c.aborted {
		h.mu.Unlock()
		return
	}
	sub, abort := c.sub, c.abort
	sub.senders.Add(1)
	h.mu.Unlock()
	defer sub.senders.Done()

	select {
	case sub.ch <- Chunk{ConversationID: id, Text: text}:
	case <-abort:
	case <-sub.closing:
	}
}

// Done waits for in-flight chunks, sends the sentinel chunk and closes
// the subscription.
func (h *Hub) Done(id string) {
	h.mu.Lock()
	c, ok := h.convs[id]
	if !ok || c.sub == nil {
		h.mu.Unlock()
		return
	}
	sub := c.sub
	c.sub = nil
	h.mu.Unlock()

	sub.senders.Wait()
	select {
	case sub.ch <- Chunk{ConversationID: id, Done: true}:
	default:
	}
	close(sub.ch)
}

// Abort flags the conversation. Blocked emitters return and IsAborted
// reports true until Reset.
func (h *Hub) Abort(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.get(id)
	if !c.aborted {
		c.aborted = true
		close(c.abort)
	}
}

// IsAborted reports whether Abort was called since the last Reset.
func (h *Hub) IsAborted(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.convs[id]
	return ok && c.aborted
}

// Reset clears the abort flag so a new turn can run.
func (h *Hub) Reset(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.convs[id]
	if ok && c.aborted {
		c.aborted = false
		c.abort = make(chan struct{})
	}
}

// Close ends the subscription and forgets the conversation.
func (h *Hub) Close(id string) {
	h.mu.Lock()
	c, ok := h.convs[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.convs, id)
	sub := c.sub
	c.sub = nil
	h.mu.Unlock()

	if sub != nil {
		close(sub.closing)
		sub.senders.Wait()
		close(sub.ch)
	}
}

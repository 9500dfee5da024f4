package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	eventsChannel  = "board:events"
	observerBuffer = 16
)

// Event is one board notification as relayed to stream observers.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Hub relays board events between service instances over redis pub/sub
// and fans them out to connected stream observers.
type Hub struct {
	rc     *redis.Client
	logger *log.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	observers map[string]chan Event
}

func NewHub(rc *redis.Client, logger *log.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		rc:        rc,
		logger:    logger,
		cancel:    cancel,
		done:      make(chan struct{}),
		observers: make(map[string]chan Event),
	}
	go h.run(ctx)
	return h
}

// Broadcast publishes one event to every service instance, including this one.
func (h *Hub) Broadcast(ctx context.Context, event string, payload any) error {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := sonic.Marshal(Event{Name: event, Payload: body})
	if err != nil {
		return err
	}
	return h.rc.Publish(ctx, eventsChannel, data).Err()
}

// Subscribe registers a stream observer. The returned cancel func must be
// called when the observer disconnects.
func (h *Hub) Subscribe() (string, <-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, observerBuffer)
	h.mu.Lock()
	h.observers[id] = ch
	h.mu.Unlock()
	h.logger.WithField("observer", id).Debug("stream observer connected")
	cancel := func() {
		h.mu.Lock()
		if _, ok := h.observers[id]; ok {
			delete(h.observers, id)
			close(ch)
		}
		h.mu.Unlock()
		h.logger.WithField("observer", id).Debug("stream observer disconnected")
	}
	return id, ch, cancel
}

// Close stops the pub/sub loop and waits for it to exit. Observer channels
// stay open; their cancel funcs still work.
func (h *Hub) Close() {
	h.cancel()
	<-h.done
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	for {
		sub := h.rc.Subscribe(ctx, eventsChannel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev Event
				if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
					h.logger.WithError(err).Error("unable to parse board event")
					continue
				}
				h.fanOut(ev)
			}
		}
		sub.Close()
		if ctx.Err() != nil {
			return
		}
		h.logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

// fanOut never blocks on an observer; a full channel means the observer is
// not draining fast enough and the event is dropped for it.
func (h *Hub) fanOut(ev Event) {
	h.mu.Lock()
	for id, ch := range h.observers {
		select {
		case ch <- ev:
		default:
			h.logger.WithField("observer", id).Warn("dropping event for lagging observer")
		}
	}
	h.mu.Unlock()
}

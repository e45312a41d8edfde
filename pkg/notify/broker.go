package notify

import (
	"sync"
	"time"

	"github.com/windlass/windlass/pkg/types"
)

// EventType represents the type of event
type EventType string

const (
	EventDeploymentCreated       EventType = "deployment.created"
	EventDeploymentStatusChanged EventType = "deployment.status_changed"
	EventAlert                   EventType = "alert"
)

// Event is a platform event delivered to subscribers
type Event struct {
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution. It implements
// Notifier so platform components publish through the same interface the
// webhook sink uses.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Notifier implementation

func (b *Broker) DeploymentCreated(deploymentID string) {
	b.Publish(&Event{
		Type:     EventDeploymentCreated,
		Metadata: map[string]string{"deployment_id": deploymentID},
	})
}

func (b *Broker) DeploymentStatusChange(deploymentID string, oldStatus, newStatus types.DeploymentStatus) {
	b.Publish(&Event{
		Type: EventDeploymentStatusChanged,
		Metadata: map[string]string{
			"deployment_id": deploymentID,
			"old_status":    string(oldStatus),
			"new_status":    string(newStatus),
		},
	})
}

func (b *Broker) Alert(kind, severity, message string, metadata map[string]string) {
	md := map[string]string{"kind": kind, "severity": severity}
	for k, v := range metadata {
		md[k] = v
	}
	b.Publish(&Event{
		Type:     EventAlert,
		Message:  message,
		Metadata: md,
	})
}

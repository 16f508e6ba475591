package msg

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Topic partitions the message stream.
type Topic int

// Topics published inside a market process.
const (
	Status Topic = iota
	Bid
	Clearing
)

// Publisher is the interface for objects that broadcast messages by topic.
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Msg is a single message from a publisher.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the message topic
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data
func (v Msg) Payload() interface{} {
	return v.payload
}

// PubSub fans messages out to subscribers by topic. Sends never block:
// a subscriber that falls behind drops messages.
type PubSub struct {
	mux  *sync.Mutex
	pid  uuid.UUID
	subs map[Topic]map[uuid.UUID]chan<- Msg
}

// NewPublisher returns a PubSub owned by the process identified by pid.
func NewPublisher(pid uuid.UUID) *PubSub {
	subs := make(map[Topic]map[uuid.UUID]chan<- Msg)
	return &PubSub{&sync.Mutex{}, pid, subs}
}

// PID returns the publisher's process id.
func (p *PubSub) PID() uuid.UUID {
	return p.pid
}

// Subscribe returns a channel carrying messages published on topic.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()

	if _, ok := p.subs[topic]; !ok {
		p.subs[topic] = make(map[uuid.UUID]chan<- Msg)
	}
	if _, ok := p.subs[topic][pid]; ok {
		return nil, errors.New("msg: pid already subscribed to topic")
	}
	ch := make(chan Msg, 8)
	p.subs[topic][pid] = ch
	return ch, nil
}

// Unsubscribe closes and removes all of pid's subscriptions.
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, topicSubs := range p.subs {
		if ch, ok := topicSubs[pid]; ok {
			close(ch)
			delete(topicSubs, pid)
		}
	}
}

// Publish broadcasts payload to all subscribers of topic.
func (p *PubSub) Publish(topic Topic, payload interface{}) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, ch := range p.subs[topic] {
		select {
		case ch <- New(p.pid, topic, payload):
		default:
		}
	}
}

// Stop closes all subscriber channels.
func (p *PubSub) Stop() {
	p.mux.Lock()
	defer p.mux.Unlock()
	for topic, topicSubs := range p.subs {
		for pid, ch := range topicSubs {
			close(ch)
			delete(topicSubs, pid)
		}
		delete(p.subs, topic)
	}
}

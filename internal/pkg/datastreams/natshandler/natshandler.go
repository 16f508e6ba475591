/*
natshandler.go Federation transport. Outbound, clearing records are published
to NATS for the other processes in the co-simulation; inbound, remote
buildings' flattened bid vectors are decoded and registered with the market.
Only the economically relevant curve crosses the process boundary.
*/

package natshandler

import (
	"encoding/json"
	"io/ioutil"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gridloop/tem_core/internal/pkg/msg"

	nats "github.com/nats-io/nats.go"
)

// Registrar accepts remote participants decoded off the wire.
type Registrar interface {
	RegisterRemote(name string, vector []float64) error
}

// RemoteBid is the wire form of one remote building's bid: the flattened
// (quantity, price) breakpoint vector.
type RemoteBid struct {
	Name  string    `json:"Name"`
	Curve []float64 `json:"Curve"`
}

// Handler bridges the in-process message bus and NATS.
type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	stop   chan bool
}

type config struct {
	Server          string `json:"Server"`
	BidSubject      string `json:"BidSubject"`
	ClearingSubject string `json:"ClearingSubject"`
}

// New returns a Handler subscribed to the market's clearing broadcasts.
func New(configPath string, system msg.Publisher) (Handler, error) {
	jsonConfig, err := ioutil.ReadFile(configPath)
	if err != nil {
		return Handler{}, err
	}
	cfg := config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Handler{}, err
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return Handler{}, err
	}

	inbox, err := system.Subscribe(pid, msg.Clearing)
	if err != nil {
		return Handler{}, err
	}

	return Handler{
		mux:    &sync.Mutex{},
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		stop:   make(chan bool),
	}, nil
}

// PID is an accessor for the handler's process id.
func (h Handler) PID() uuid.UUID {
	return h.pid
}

// Stop terminates the handler loop.
func (h *Handler) Stop() {
	h.stop <- true
}

// Process connects to NATS, forwards clearing records outbound and remote
// bids inbound. Remote bids registered here must land before the round's
// Clear call; the round sequencing is the caller's responsibility.
func (h Handler) Process(registrar Registrar) {
	log.Println("[NATS client] Process Started")
	nc, err := nats.Connect(h.config.Server)
	if err != nil {
		log.Println("[NATS client]", err)
		return
	}
	defer nc.Close()

	sub, err := nc.Subscribe(h.config.BidSubject, func(m *nats.Msg) {
		if err := h.ingressBid(registrar, m.Data); err != nil {
			log.Println("[NATS client] rejected remote bid:", err)
		}
	})
	if err != nil {
		log.Println("[NATS client]", err)
		return
	}
	defer sub.Unsubscribe()

loop:
	for {
		select {
		case m := <-h.inbox:
			if m.Topic() != msg.Clearing {
				continue
			}
			data, err := json.Marshal(m.Payload())
			if err != nil {
				continue
			}
			if err = nc.Publish(h.config.ClearingSubject, data); err != nil {
				log.Printf("[NATS client] unable to publish clearing record: %v", err)
			}
		case <-h.stop:
			break loop
		}
	}
	log.Println("[NATS client] Process Shutdown")
}

func (h Handler) ingressBid(registrar Registrar, data []byte) error {
	remote := RemoteBid{}
	if err := json.Unmarshal(data, &remote); err != nil {
		return err
	}
	return registrar.RegisterRemote(remote.Name, remote.Curve)
}

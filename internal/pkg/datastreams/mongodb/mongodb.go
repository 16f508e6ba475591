/*
mongodb.go Persists clearing records so a round's price and allocations can
be inspected after the co-simulation moves on.
*/

package mongodb

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gridloop/tem_core/internal/pkg/market"
	"github.com/gridloop/tem_core/internal/pkg/msg"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Handler drains market broadcasts into MongoDB.
type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	stop   chan bool
}

type config struct {
	URI      string `json:"URI"`
	Port     string `json:"Port"`
	Database string `json:"Database"`
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

// StopProcess terminates the handler loop.
func (h *Handler) StopProcess() {
	h.stop <- true
}

// Process connects to MongoDB and upserts one document per market per round.
func (h Handler) Process() {
	client, err := mongo.NewClient(options.Client().ApplyURI(h.config.URI + ":" + h.config.Port))
	if err != nil {
		log.Println("[Mongo]", err)
		return
	}

	ctx := context.TODO()
	if err := client.Connect(ctx); err != nil {
		log.Println("[Mongo]", err)
		return
	}
	defer client.Disconnect(ctx)

	records := client.Database(h.config.Database).Collection("clearingRecord")
loop:
	for {
		select {
		case m := <-h.inbox:
			record, ok := m.Payload().(market.ClearingRecord)
			if !ok {
				continue
			}
			opts := options.Update().SetUpsert(true)
			_, err := records.UpdateOne(
				ctx,
				bson.M{"market": record.Market},
				recordToBSON(record),
				opts,
			)
			if err != nil {
				log.Println("[Mongo]", err)
			}
		case <-h.stop:
			break loop
		}
	}
	log.Println("[Mongo] Process Shutdown")
}

func recordToBSON(r market.ClearingRecord) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.M{
			"market":      r.Market,
			"offer":       r.Offer,
			"price":       r.Price,
			"allocations": r.Allocations,
		}},
	}
}

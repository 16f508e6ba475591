package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/gridloop/tem_core/internal/pkg/agent/building"
	"github.com/gridloop/tem_core/internal/pkg/agent/building/virtualbuilding"
	"github.com/gridloop/tem_core/internal/pkg/datastreams/mongodb"
	"github.com/gridloop/tem_core/internal/pkg/datastreams/natshandler"
	"github.com/gridloop/tem_core/internal/pkg/market"
)

func main() {
	log.Println("[Main] Starting TEM_Core v0.0.1")

	log.Println("[Main] Building Agents")
	buildings, err := buildBuildings("./config/agent/buildings.json")
	if err != nil {
		panic(err)
	}

	log.Println("[Main] Assembling Market")
	m, err := buildMarket("./config/market/market.json", buildings)
	if err != nil {
		panic(err)
	}

	log.Println("[Main] Linking Datastreams")
	linkDatastreams(m)

	fmt.Print(m.Dump())
	sweepOffers(m, buildings)
}

// buildBuildings constructs one virtual building per definition in the
// config document.
func buildBuildings(configPath string) ([]*building.Asset, error) {
	jsonConfig, err := ioutil.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var definitions []json.RawMessage
	if err := json.Unmarshal(jsonConfig, &definitions); err != nil {
		return nil, err
	}

	buildings := make([]*building.Asset, 0, len(definitions))
	for _, definition := range definitions {
		asset, err := virtualbuilding.NewFromConfig(definition)
		if err != nil {
			return nil, err
		}
		a := asset
		buildings = append(buildings, &a)
	}
	return buildings, nil
}

// buildMarket registers the first building locally and the rest through the
// flattened-vector remote path, the same join a federated process uses.
func buildMarket(configPath string, buildings []*building.Asset) (*market.Market, error) {
	jsonConfig, err := ioutil.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	m, err := market.New(jsonConfig, buildings[0].Participant())
	if err != nil {
		return nil, err
	}

	for _, b := range buildings[1:] {
		if err := m.RegisterRemote(b.Name(), b.Curve().Vector()); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func linkDatastreams(m *market.Market) {
	if _, err := os.Stat("./config/database/mongodb.json"); err == nil {
		mongoHandler, err := mongodb.New("./config/database/mongodb.json", m)
		if err != nil {
			panic(err)
		}
		go mongoHandler.Process()
	}

	if _, err := os.Stat("./config/datastreams/nats.json"); err == nil {
		natsHandler, err := natshandler.New("./config/datastreams/nats.json", m)
		if err != nil {
			panic(err)
		}
		go natsHandler.Process(m)
	}
}

// sweepOffers clears the market across the offer range and prints each
// building's allocation and setpoint relaxation.
func sweepOffers(m *market.Market, buildings []*building.Asset) {
	fmt.Printf("%20s", "")
	for _, b := range buildings {
		fmt.Printf("%20s", b.Name())
	}
	fmt.Println()
	fmt.Printf("%10s%10s", "Offer", "Price")
	for range buildings {
		fmt.Printf("%10s%10s", "DeltaKW", "DeltaDegF")
	}
	fmt.Printf("%10s\n", "TotLoad")

	for offer := 0.0; offer <= 1901.0; offer += 100.0 {
		price, err := m.Clear(offer)
		if err != nil {
			log.Printf("[Main] clearing failed at offer %.2f: %v", offer, err)
			continue
		}

		fmt.Printf("%10.2f%10.2f", offer, price)
		total := 0.0
		for _, b := range buildings {
			kw := b.LoadAtPrice(price)
			total += kw
			fmt.Printf("%10.2f%10.2f", kw-b.BaseKW(), b.SetpointAtLoad(kw)-b.BaseSetpointDegF())
			b.WriteControl(price)
		}
		fmt.Printf("%10.2f\n", total)
	}
}

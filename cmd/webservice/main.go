package main

import (
	"encoding/json"
	"io/ioutil"
	"log"

	"github.com/gridloop/tem_core/internal/pkg/agent/building/virtualbuilding"
	"github.com/gridloop/tem_core/internal/pkg/market"
	"github.com/gridloop/tem_core/internal/pkg/webservice"
)

func main() {
	log.Println("[Main] Starting TEM_Core webservice")

	m, err := buildMarket("./config/agent/buildings.json", "./config/market/market.json")
	if err != nil {
		panic(err)
	}

	service, err := webservice.New(m)
	if err != nil {
		panic(err)
	}

	if err := service.Serve(":8080"); err != nil {
		panic(err)
	}
}

func buildMarket(buildingsPath, marketPath string) (*market.Market, error) {
	jsonBuildings, err := ioutil.ReadFile(buildingsPath)
	if err != nil {
		return nil, err
	}

	var definitions []json.RawMessage
	if err := json.Unmarshal(jsonBuildings, &definitions); err != nil {
		return nil, err
	}

	participants := make([]market.Participant, 0, len(definitions))
	for _, definition := range definitions {
		asset, err := virtualbuilding.NewFromConfig(definition)
		if err != nil {
			return nil, err
		}
		a := asset
		participants = append(participants, a.Participant())
	}

	jsonMarket, err := ioutil.ReadFile(marketPath)
	if err != nil {
		return nil, err
	}
	return market.New(jsonMarket, participants...)
}

package main

import (
	"fmt"

	"auto-trading-engine/internal/config"
	"auto-trading-engine/internal/engine"
	"auto-trading-engine/internal/gateway/gatewayobs"
	"auto-trading-engine/internal/gateway/sim"
	"auto-trading-engine/internal/interfaces"
	"auto-trading-engine/internal/sentiment"
	"auto-trading-engine/internal/store"
)

const simSeedPrice = 1000.0

// buildEngine wires the collaborators for the configured mode. The returned
// store must be closed by the caller after the engine stops.
func buildEngine(cfg *config.Config) (*engine.Engine, *store.Store, error) {
	if cfg.Mode == "LIVE" {
		return nil, nil, fmt.Errorf("LIVE mode requires a broker gateway; this build ships the paper gateway only")
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}

	seeds := make(map[string]float64, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		seeds[inst] = simSeedPrice
	}
	var gw interfaces.Gateway = gatewayobs.Wrap(sim.New(seeds))

	eng, err := engine.New(cfg, gw, st, sentiment.Noop{})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return eng, st, nil
}

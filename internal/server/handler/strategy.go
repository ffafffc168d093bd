package handler

import (
	"net/http"
)

// StrategyRegistry is the part of the strategy registry the handler reads.
type StrategyRegistry interface {
	Keys() []string
	Label(key string) string
}

// StrategyHandler lists the configured strategies.
type StrategyHandler struct {
	registry  StrategyRegistry
	baselines []string
}

// NewStrategyHandler creates a StrategyHandler.
func NewStrategyHandler(registry StrategyRegistry, baselines []string) *StrategyHandler {
	return &StrategyHandler{registry: registry, baselines: baselines}
}

type strategyView struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Baseline bool   `json:"baseline"`
}

// ListStrategies returns the strategies in output order.
// GET /api/strategies
func (h *StrategyHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	base := make(map[string]bool, len(h.baselines))
	for _, b := range h.baselines {
		base[b] = true
	}
	keys := h.registry.Keys()
	out := make([]strategyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, strategyView{Key: k, Label: h.registry.Label(k), Baseline: base[k]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategies": out})
}

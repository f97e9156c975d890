package main

import (
	"fmt"

	"github.com/steward-labs/steward/internal/adapter/webhook"
	"github.com/steward-labs/steward/internal/config"
	"github.com/steward-labs/steward/internal/domain/tool"
)

// registerTools populates the registry from the configured webhook tool
// integrations. Any bad entry aborts startup: a missing tier or a duplicate
// name is a deployment error, not something to discover on the first call.
func registerTools(registry *tool.Registry, specs []config.ToolSpec) error {
	for _, spec := range specs {
		exec := webhook.NewExecutor(spec.Endpoint, spec.Timeout)
		err := registry.Register(tool.Tool{
			Name:                  spec.Name,
			Description:           spec.Description,
			Tier:                  tool.TrustTier(spec.Tier),
			Execute:               exec.Execute,
			ExecuteOptimistically: spec.Optimistic,
			Timeout:               spec.Timeout,
		})
		if err != nil {
			return fmt.Errorf("tool %s: %w", spec.Name, err)
		}
	}
	return nil
}

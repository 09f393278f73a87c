package workflow

import (
	"medwarehouse/internal/stage"
	"medwarehouse/internal/warehouse"
)

// ConfigureStages registers the concrete stage handlers the pipeline will run.
// Nil handlers are left out.
func (m *Manager) ConfigureStages(set StageSet) {
	candidates := []struct {
		name       string
		handler    stage.Handler
		processing warehouse.RunStatus
	}{
		{StageScraping, set.Scraper, warehouse.RunScraping},
		{StageLoading, set.Loader, warehouse.RunLoading},
		{StageTransforming, set.Transformer, warehouse.RunTransforming},
		{StageEnriching, set.Enricher, warehouse.RunEnriching},
	}
	stages := make([]pipelineStage, 0, len(candidates))
	for _, c := range candidates {
		if c.handler == nil {
			continue
		}
		stages = append(stages, pipelineStage{name: c.name, handler: c.handler, processing: c.processing})
	}
	m.stages = stages
}

// StageNames lists the configured stages in pipeline order.
func (m *Manager) StageNames() []string {
	names := make([]string, 0, len(m.stages))
	for _, stg := range m.stages {
		names = append(names, stg.name)
	}
	return names
}

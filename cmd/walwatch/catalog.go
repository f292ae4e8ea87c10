package main

import (
	"fmt"
	"io"

	"github.com/torosent/walwatch/internal/config"
	"github.com/torosent/walwatch/internal/scenario"
)

// loadCatalog returns the built-in catalog, merged with the configured file.
func loadCatalog(cfg *config.Config) (*scenario.Catalog, error) {
	catalog, err := scenario.Builtin()
	if err != nil {
		return nil, err
	}
	if cfg.CatalogFile == "" {
		return catalog, nil
	}
	extra, err := scenario.LoadFile(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}
	return catalog.Merge(extra), nil
}

// scenarioIDs resolves the scenario selection: one id, or the whole catalog.
func scenarioIDs(cfg *config.Config, catalog *scenario.Catalog) ([]int, error) {
	if cfg.Scenario == nil {
		return catalog.IDs(), nil
	}
	if _, err := catalog.Get(*cfg.Scenario); err != nil {
		return nil, err
	}
	return []int{*cfg.Scenario}, nil
}

func printCatalog(w io.Writer, catalog *scenario.Catalog) {
	for _, id := range catalog.IDs() {
		sc, err := catalog.Get(id)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%3d  %s\n", id, sc.Title)
	}
}

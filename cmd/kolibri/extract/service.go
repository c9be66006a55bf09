// Package extract drives the extraction run: one worker per resource type
// pulls bundle pages, maps each entry to a flat record and emits the batch.
package extract

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/SanteonNL/kolibri/cmd/kolibri/emitter"
	"github.com/SanteonNL/kolibri/cmd/kolibri/fhir/client"
	"github.com/SanteonNL/kolibri/cmd/kolibri/fhir/path"
	"github.com/SanteonNL/kolibri/cmd/kolibri/mapping"
	"github.com/rs/zerolog"
)

// Service wires the fetch, mapping and emit stages together. Workers share
// the token store through the client; everything else they touch is either
// owned per worker or immutable.
type Service struct {
	client   *client.Service
	registry *mapping.Registry
	engine   *mapping.Engine
	emitter  *emitter.Emitter
	sink     emitter.Sink
	stats    *Stats
	log      zerolog.Logger
}

func NewService(
	fhirClient *client.Service,
	registry *mapping.Registry,
	engine *mapping.Engine,
	em *emitter.Emitter,
	sink emitter.Sink,
	log zerolog.Logger,
) *Service {
	return &Service{
		client:   fhirClient,
		registry: registry,
		engine:   engine,
		emitter:  em,
		sink:     sink,
		stats:    NewStats(),
		log:      log.With().Str("component", "extractor").Logger(),
	}
}

// Stats exposes the run counters for the ops endpoint.
func (s *Service) Stats() *Stats {
	return s.stats
}

// Run extracts every resource type with a loaded mapping spec, one worker
// goroutine per type. A non-empty only list restricts the run to those
// types; each of them must have a loaded spec. A failing type does not stop
// the others; the first failure is returned after all workers finish.
func (s *Service) Run(ctx context.Context, only []string, searchParams map[string]url.Values) error {
	types := s.registry.ResourceTypes()
	if len(only) > 0 {
		for _, resourceType := range only {
			if _, err := s.registry.Get(resourceType); err != nil {
				return err
			}
		}
		types = only
	}
	if len(types) == 0 {
		return fmt.Errorf("no mapping specs loaded")
	}

	var wg sync.WaitGroup
	errs := make([]error, len(types))

	for i, resourceType := range types {
		wg.Add(1)
		go func(i int, resourceType string) {
			defer wg.Done()
			err := s.RunType(ctx, resourceType, searchParams[resourceType])
			s.stats.update(resourceType, func(ts *TypeStats) {
				ts.Done = true
				if err != nil {
					ts.Error = err.Error()
				}
			})
			errs[i] = err
		}(i, resourceType)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("extraction of %s failed: %w", types[i], err)
		}
	}
	return nil
}

// RunType extracts a single resource type: fetch all pages in next-link
// order, map every entry, then emit the batch. Entries that fail to parse
// count as input loss and are caught by the emitter's threshold check.
func (s *Service) RunType(ctx context.Context, resourceType string, params url.Values) error {
	spec, err := s.registry.Get(resourceType)
	if err != nil {
		return err
	}

	var (
		records    []*mapping.FlatRecord
		inputCount int
	)

	pages := s.client.FetchAll(ctx, resourceType, params)
	for pages.Next() {
		bundle := pages.Bundle()
		s.stats.update(resourceType, func(ts *TypeStats) { ts.Pages++ })

		for _, entry := range bundle.Entry {
			if len(entry.Resource) == 0 {
				continue
			}
			inputCount++

			resource, err := path.Parse(entry.Resource)
			if err != nil {
				s.log.Warn().Err(err).
					Str("resourceType", resourceType).
					Msg("Skipping unparseable bundle entry")
				continue
			}
			records = append(records, s.engine.Apply(resource, spec))
		}
		s.stats.update(resourceType, func(ts *TypeStats) { ts.Resources = inputCount })
	}
	if err := pages.Err(); err != nil {
		return err
	}

	s.log.Info().
		Str("resourceType", resourceType).
		Int("pages", pages.Pages()).
		Int("resources", inputCount).
		Msg("Fetch complete, emitting batch")

	if err := s.emitter.Emit(ctx, resourceType, records, inputCount, s.sink); err != nil {
		return err
	}
	s.stats.update(resourceType, func(ts *TypeStats) { ts.Records = len(records) })
	return nil
}

// Package tracker turns a catalog number into a propagated ground track:
// element set lookup, SGP4 propagation and a summary log line.
package tracker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/signalsfoundry/satloc/core"
	"github.com/signalsfoundry/satloc/elements"
	"github.com/signalsfoundry/satloc/internal/celestrak"
	"github.com/signalsfoundry/satloc/internal/logging"
	"github.com/signalsfoundry/satloc/internal/observability"
	"github.com/signalsfoundry/satloc/model"
	"github.com/signalsfoundry/satloc/timectrl"
)

// Source yields the element set for a catalog number. kb.KnowledgeBase
// satisfies it.
type Source interface {
	Elements(ctx context.Context, catalogNumber uint32) (model.ElementSet, error)
}

// SourceFunc adapts a function, such as (*celestrak.Client).Fetch, to Source.
type SourceFunc func(ctx context.Context, catalogNumber uint32) (model.ElementSet, error)

// Elements calls f.
func (f SourceFunc) Elements(ctx context.Context, catalogNumber uint32) (model.ElementSet, error) {
	return f(ctx, catalogNumber)
}

// StaticSource serves a fixed set of element sets, e.g. from a local file.
type StaticSource map[uint32]model.ElementSet

// Elements returns the held set or celestrak.ErrNotFound.
func (s StaticSource) Elements(_ context.Context, catalogNumber uint32) (model.ElementSet, error) {
	es, ok := s[catalogNumber]
	if !ok {
		return model.ElementSet{}, fmt.Errorf("%w: %d", celestrak.ErrNotFound, catalogNumber)
	}
	return es, nil
}

// LoadFile reads element sets from a two- or three-line file.
func LoadFile(path string) (StaticSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read element file: %w", err)
	}
	sets, err := elements.Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	src := make(StaticSource, len(sets))
	for _, es := range sets {
		src[es.CatalogNumber] = es
	}
	return src, nil
}

// Request describes one track.
type Request struct {
	CatalogNumber uint32
	Start         time.Time
	Step          time.Duration
	Samples       int
	Gravity       core.GravityModel
}

// Schedule returns the sampling schedule, filling defaults for zero fields.
func (r Request) Schedule() timectrl.Schedule {
	step, count := r.Step, r.Samples
	if step == 0 {
		step = core.DefaultStep
	}
	if count == 0 {
		count = core.DefaultSamples
	}
	return timectrl.Schedule{Start: r.Start, Step: step, Count: count}
}

// Tracker runs the lookup and propagation steps.
type Tracker struct {
	source  Source
	log     logging.Logger
	metrics *observability.TrackCollector
}

// New returns a Tracker reading element sets from source.
func New(source Source, log logging.Logger, metrics *observability.TrackCollector) *Tracker {
	if log == nil {
		log = logging.Noop()
	}
	return &Tracker{source: source, log: log, metrics: metrics}
}

// Propagator looks up the element set and prepares SGP4 for it.
func (t *Tracker) Propagator(ctx context.Context, catalogNumber uint32, gravity core.GravityModel) (*core.Propagator, error) {
	es, err := t.source.Elements(ctx, catalogNumber)
	if err != nil {
		return nil, err
	}
	return core.NewPropagator(es, gravity)
}

// Track looks up the element set for req and propagates it.
func (t *Tracker) Track(ctx context.Context, req Request) (*model.GroundTrack, error) {
	sched := req.Schedule()
	if err := sched.Validate(); err != nil {
		return nil, err
	}
	prop, err := t.Propagator(ctx, req.CatalogNumber, req.Gravity)
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx, t.log).With(logging.Uint32("catalog_number", req.CatalogNumber))
	began := time.Now()
	track, err := prop.Track(ctx, sched)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(began)
	t.metrics.ObservePropagation(len(track.Samples), elapsed)

	sum := core.Summarize(track)
	age := track.Start.Sub(track.Elements.Epoch)
	if age < 0 {
		age = -age
	}
	fields := []logging.Field{
		logging.String("name", track.Elements.DisplayName()),
		logging.Time("start", track.Start),
		logging.Int("samples", sum.Samples),
		logging.Int("segments", sum.Segments),
		logging.Float("ground_distance_km", sum.GroundDistKm),
		logging.Float("min_altitude_km", sum.MinAltitudeKm),
		logging.Float("max_altitude_km", sum.MaxAltitudeKm),
		logging.Duration("elapsed", elapsed),
	}
	log.Info(ctx, "propagated ground track", fields...)
	if age > staleElementsAge {
		log.Warn(ctx, "element set epoch is far from the track start; accuracy degrades",
			logging.Time("epoch", track.Elements.Epoch),
			logging.Duration("age", age),
		)
	}
	return track, nil
}

// staleElementsAge is how far from its epoch an element set is trusted
// before a warning is logged.
const staleElementsAge = 14 * 24 * time.Hour

// Package stage is the per-unit entry point of the assertion stripping
// transform. A Stage is built once from a Config and then processes any
// number of units, concurrently if the host wishes: it holds no mutable
// state, and every unit owns its own tree and maps.
package stage

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/JakeChampion/unassertify/internal/signature"
	"github.com/JakeChampion/unassertify/internal/sourcemap"
	"github.com/JakeChampion/unassertify/internal/transform"
)

// Config is the pipeline configuration of the transform.
type Config struct {
	// TrackPositions emits a source map comment composed with any map the
	// unit already carries.
	TrackPositions bool
	// ExtraMarkers are additional assertion module names to recognise.
	ExtraMarkers []string
	// Patterns are additional call signatures, e.g. "invariant(condition, [message])".
	Patterns []string
	// Signatures replaces signature.Default() as the base set.
	Signatures *signature.Set
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Stage strips assertions from units according to one Config.
type Stage struct {
	trackPositions bool
	set            *signature.Set
	markers        []string
	logger         *slog.Logger
}

// New validates cfg and builds a Stage.
func New(cfg Config) (*Stage, error) {
	base := cfg.Signatures
	if base == nil {
		base = signature.Default()
	}
	set, err := base.WithModules(cfg.ExtraMarkers...).WithPatterns(cfg.Patterns...)
	if err != nil {
		return nil, fmt.Errorf("configuring signatures: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Stage{
		trackPositions: cfg.TrackPositions,
		set:            set,
		markers:        set.Markers(),
		logger:         logger,
	}, nil
}

// ProcessUnit runs one unit through a fresh Stage built from cfg.
func ProcessUnit(path string, text []byte, cfg Config) ([]byte, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return s.ProcessUnit(path, text)
}

// ProcessUnit returns the final text of one unit: the input itself when the
// pre-filter rejects it, the stripped text otherwise, followed by a source
// map comment when positions are tracked.
func (s *Stage) ProcessUnit(path string, text []byte) ([]byte, error) {
	var out bufferCloser
	p := s.NewProcessor(path, &out)
	if _, err := p.Write(text); err != nil {
		return nil, err
	}
	if err := p.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Markers returns the substrings the pre-filter looks for.
func (s *Stage) Markers() []string {
	return append([]string(nil), s.markers...)
}

// transform strips one unit that passed the pre-filter.
func (s *Stage) transform(path string, text []byte) ([]byte, error) {
	log := s.logger.With("unit", path)

	result, err := transform.Strip(text, transform.Options{
		Path:       path,
		Signatures: s.set,
		SourceMap:  s.trackPositions,
	})
	if err != nil {
		return nil, &UnitError{Path: path, Err: err}
	}
	log.Debug("stripped assertions", "removed", result.Removed)

	if !s.trackPositions {
		return result.Output, nil
	}

	incoming := s.ExtractIncomingMap(path, text)
	composed, err := sourcemap.Compose(incoming, result.Map)
	if err != nil {
		return nil, &UnitError{Path: path, Err: err}
	}
	comment, err := composed.ToComment()
	if err != nil {
		return nil, &UnitError{Path: path, Err: err}
	}
	if incoming != nil {
		log.Debug("composed incoming source map", "sources", len(composed.Sources))
	}

	out := bytes.TrimRight(result.Output, "\r\n")
	out = append(out, '\n')
	out = append(out, comment...)
	out = append(out, '\n')
	return out, nil
}

// ExtractIncomingMap returns the map an earlier stage embedded in text, or
// nil. A comment that cannot be decoded is logged and treated as absent.
func (s *Stage) ExtractIncomingMap(path string, text []byte) *sourcemap.Map {
	m, err := sourcemap.FromSource(text)
	if err != nil {
		s.logger.Warn("ignoring incoming source map", "unit", path, "error", err)
		return nil
	}
	return m
}

type bufferCloser struct {
	bytes.Buffer
}

func (*bufferCloser) Close() error { return nil }

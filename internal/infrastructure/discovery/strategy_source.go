package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"CrateDigger/internal/domain"
	"CrateDigger/internal/ports"
	"CrateDigger/internal/scanner"
)

// StrategySource implements CandidateSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	logger   *slog.Logger
}

var _ ports.CandidateSource = (*StrategySource)(nil)

// NewStrategySource wires a scanner registry.
func NewStrategySource(reg *scanner.Registry, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		logger:   log,
	}
}

// NewDefaultRegistry registers every built-in strategy.
func NewDefaultRegistry(client ports.MetadataClient, pages *PageScanner) *scanner.Registry {
	reg := scanner.NewRegistry()
	reg.Register(NewSearchScanner(client))
	reg.Register(NewPlaylistScanner(client))
	reg.Register(NewChannelScanner(client))
	if pages != nil {
		reg.Register(pages)
	}
	return reg
}

// Discover resolves the strategy for kind and returns up to maxItems platform items.
func (s *StrategySource) Discover(ctx context.Context, kind domain.SourceKind, ref string, maxItems int) ([]domain.PlatformItem, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}

	strategy, err := s.registry.Resolve(kind)
	if err != nil {
		return nil, err
	}

	s.debug("discover", "kind", kind, "ref", ref, "max_items", maxItems)
	res, err := strategy.Scan(ctx, scanner.Request{Kind: kind, Ref: ref, MaxItems: maxItems})
	if err != nil {
		return res.Items, fmt.Errorf("scan %s source: %w", kind, err)
	}

	s.debug("source produced items", "kind", kind, "ref", ref, "count", len(res.Items), "more", res.NextPageToken != "")
	return res.Items, nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

package scanner

import (
	"context"
	"fmt"
	"slices"

	"CrateDigger/internal/domain"
)

// DefaultMaxItems caps a discovery call when the caller gives no limit.
const DefaultMaxItems = 50

// Request carries all parameters required to execute one discovery call.
type Request struct {
	Kind      domain.SourceKind
	Ref       string
	MaxItems  int
	PageToken string
}

// Limit returns MaxItems or the default.
func (r Request) Limit() int {
	if r.MaxItems <= 0 {
		return DefaultMaxItems
	}
	return r.MaxItems
}

// Result is what a strategy found. NextPageToken is set when the source has more pages.
type Result struct {
	Items         []domain.PlatformItem
	NextPageToken string
}

// Scanner captures a single discovery strategy (search, playlist, channel, page).
type Scanner interface {
	Kind() domain.SourceKind
	Scan(ctx context.Context, req Request) (Result, error)
}

// Registry keeps a mapping from source kinds to their strategies.
type Registry struct {
	scanners map[domain.SourceKind]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[domain.SourceKind]Scanner{}}
}

// Register adds or replaces a strategy.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[domain.SourceKind]Scanner{}
	}
	r.scanners[scanner.Kind()] = scanner
}

// Resolve returns the strategy for kind or an error if it is absent.
func (r *Registry) Resolve(kind domain.SourceKind) (Scanner, error) {
	if scanner, ok := r.scanners[kind]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", kind)
}

// Kinds lists registered source kinds in stable order.
func (r *Registry) Kinds() []domain.SourceKind {
	kinds := make([]domain.SourceKind, 0, len(r.scanners))
	for k := range r.scanners {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Package knowledge persists prior analyses so recurring errors seed new
// passes instead of starting cold. Store failures are non-fatal to the
// analysis loop.
package knowledge

import (
	"context"

	"nightwatch-agent/src/contracts"
)

// MaxSearchResults caps how many prior results a search returns; the loop
// only has prompt room for a few.
const MaxSearchResults = 3

// Store is the knowledge-base boundary.
type Store interface {
	// Search returns prior analyses relevant to the item, best first,
	// capped to MaxSearchResults.
	Search(ctx context.Context, item contracts.ErrorReport) ([]contracts.PriorResult, error)

	// Write records one finished analysis.
	Write(ctx context.Context, result contracts.PriorResult) error

	// Close releases the store's resources.
	Close() error
}

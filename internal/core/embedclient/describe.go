package embedclient

import "github.com/docsearch-dev/docsearch/internal/core"

// Describe reports the active provider's model and dimension for the
// embeddingConfig introspection operation (spec §6), without performing a
// network call or a search.
func Describe(p core.EmbeddingProvider) (model string, dimensions int) {
	return p.Model(), p.Dimensions()
}

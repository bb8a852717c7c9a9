package plugins

import (
	"github.com/andrei-cloud/keydeck/pkg/deck"
	"github.com/sahilm/fuzzy"
)

type catalogSource []deck.Descriptor

func (c catalogSource) String(i int) string { return c[i].ActionName }
func (c catalogSource) Len() int            { return len(c) }

// FilterCatalog returns the entries whose name fuzzy-matches query, best match
// first. An empty query returns entries unchanged.
func FilterCatalog(entries []deck.Descriptor, query string) []deck.Descriptor {
	if query == "" {
		return entries
	}

	matches := fuzzy.FindFrom(query, catalogSource(entries))
	out := make([]deck.Descriptor, 0, len(matches))
	for _, m := range matches {
		out = append(out, entries[m.Index])
	}

	return out
}

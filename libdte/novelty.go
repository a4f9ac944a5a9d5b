package libdte

import (
	"github.com/arcspace/go-arc-sdk/stdlib/symbol"
	"github.com/arcspace/go-arc-sdk/stdlib/symbol/memory_table"
)

// noveltyTracker counts topologies never seen before by interning canonical
// graph signatures into a symbol table and watching for newly issued IDs.
type noveltyTracker struct {
	seen symbol.Table
}

func newNoveltyTracker() (*noveltyTracker, error) {
	tableOpts := memory_table.DefaultOpts()
	seen, err := tableOpts.CreateTable()
	if err != nil {
		return nil, err
	}
	return &noveltyTracker{
		seen: seen,
	}, nil
}

// Observe interns sig and reports whether this topology is new.
// GetSymbolID returns 0 for a value that was never issued an ID.
func (nt *noveltyTracker) Observe(sig []byte) bool {
	if nt.seen.GetSymbolID(sig, false) != 0 {
		return false
	}
	nt.seen.GetSymbolID(sig, true)
	return true
}

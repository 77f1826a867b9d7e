package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ListingOptions bounds the precomputed directory listing
type ListingOptions struct {
	MaxEntries int
	MaxDepth   int
}

// Listing is a truncated tree rendering of a directory
type Listing struct {
	Lines     []string
	Entries   int
	Truncated bool
}

// String renders the listing one entry per line, directories suffixed with "/"
func (l Listing) String() string {
	if l.Entries == 0 {
		return "(empty directory)"
	}
	out := strings.Join(l.Lines, "\n")
	if l.Truncated {
		out += fmt.Sprintf("\n... (listing truncated after %d entries)", l.Entries)
	}
	return out
}

// shouldSkipDir prunes hidden directories and dependency caches
func shouldSkipDir(name string) bool {
	return (len(name) > 0 && name[0] == '.') || name == "node_modules" || name == "vendor"
}

// BuildListing walks root depth-first in name order and stops after
// MaxEntries entries or below MaxDepth levels.
func BuildListing(root string, opts ListingOptions) (Listing, error) {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 200
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 4
	}

	var listing Listing
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			if listing.Truncated {
				return nil
			}
			if entry.IsDir() && shouldSkipDir(entry.Name()) {
				continue
			}
			if listing.Entries >= opts.MaxEntries {
				listing.Truncated = true
				return nil
			}

			name := entry.Name()
			if entry.IsDir() {
				name += "/"
			}
			listing.Lines = append(listing.Lines, strings.Repeat("  ", depth)+name)
			listing.Entries++

			if entry.IsDir() && depth+1 < opts.MaxDepth {
				if err := walk(filepath.Join(dir, entry.Name()), depth+1); err != nil {
					log.Warn().Err(err).Str("dir", entry.Name()).Msg("Skipping unreadable directory")
				}
			}
		}
		return nil
	}

	if err := walk(root, 0); err != nil {
		return Listing{}, fmt.Errorf("failed to list %s: %w", root, err)
	}
	return listing, nil
}

package scanner

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/Nomadcxx/jellylink/internal/logging"
)

// TieBreak decides which file keeps a key when two candidates have the
// same priority
type TieBreak string

const (
	// TieBreakLexical keeps the lexicographically smaller source filename,
	// so the winner does not depend on listing order.
	TieBreakLexical TieBreak = "lexical"
	// TieBreakFirstSeen keeps whichever file was offered first.
	TieBreakFirstSeen TieBreak = "first_seen"
)

// Stats counts classification outcomes for one or more title directories
type Stats struct {
	FilesChecked   int `json:"files_checked"`
	ShapeBroadcast int `json:"shape_broadcast"`
	ShapeCompact   int `json:"shape_compact"`
	Unparseable    int `json:"unparseable"`
	Discarded      int `json:"discarded"`  // accepted with priority <= 0
	Superseded     int `json:"superseded"` // lost a same-key collision
}

// Observe records a classification result. Counting never affects which
// file wins.
func (s *Stats) Observe(r Result) {
	s.FilesChecked++
	switch r.Shape {
	case ShapeBroadcast:
		s.ShapeBroadcast++
	case ShapeCompact:
		s.ShapeCompact++
	}
	if !r.Accepted() {
		s.Unparseable++
	}
}

// Add folds other into s
func (s *Stats) Add(other Stats) {
	s.FilesChecked += other.FilesChecked
	s.ShapeBroadcast += other.ShapeBroadcast
	s.ShapeCompact += other.ShapeCompact
	s.Unparseable += other.Unparseable
	s.Discarded += other.Discarded
	s.Superseded += other.Superseded
}

// EpisodeSet maps canonical keys to the winning identity for one title
// directory
type EpisodeSet struct {
	entries map[string]Identity
}

// NewEpisodeSet returns an empty set
func NewEpisodeSet() *EpisodeSet {
	return &EpisodeSet{entries: make(map[string]Identity)}
}

// Len returns the number of keys in the set
func (s *EpisodeSet) Len() int {
	return len(s.entries)
}

// Get returns the identity stored under key
func (s *EpisodeSet) Get(key string) (Identity, bool) {
	id, ok := s.entries[key]
	return id, ok
}

// Keys returns all keys in sorted order
func (s *EpisodeSet) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Identities returns the winning identities in key order
func (s *EpisodeSet) Identities() []Identity {
	keys := s.Keys()
	ids := make([]Identity, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, s.entries[k])
	}
	return ids
}

// Offer inserts id, or replaces the current holder of its key when id
// wins. It reports whether id was stored.
func (s *EpisodeSet) Offer(id Identity, tieBreak TieBreak) bool {
	key := id.Key()
	current, exists := s.entries[key]
	if !exists || beats(id, current, tieBreak) {
		s.entries[key] = id
		return true
	}
	return false
}

func beats(candidate, current Identity, tieBreak TieBreak) bool {
	if candidate.Priority != current.Priority {
		return candidate.Priority > current.Priority
	}
	if tieBreak == TieBreakLexical {
		return candidate.SourceName < current.SourceName
	}
	return false
}

// Resolver builds episode sets from directory listings
type Resolver struct {
	classifier *Classifier
	tieBreak   TieBreak
	logger     *slog.Logger
}

// NewResolver creates a resolver. A nil logger discards diagnostics.
func NewResolver(classifier *Classifier, tieBreak TieBreak, logger *slog.Logger) (*Resolver, error) {
	switch tieBreak {
	case "":
		tieBreak = TieBreakLexical
	case TieBreakLexical, TieBreakFirstSeen:
	default:
		return nil, fmt.Errorf("unknown tie break: %q", tieBreak)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{classifier: classifier, tieBreak: tieBreak, logger: logger}, nil
}

// Resolve classifies every name and keeps the highest-priority file per
// canonical key. Results with priority <= 0 are dropped as noise.
func (r *Resolver) Resolve(names []string) (*EpisodeSet, Stats) {
	set := NewEpisodeSet()
	var stats Stats

	r.logger.Debug("title listing", "files", names)

	for _, name := range names {
		result := r.classifier.Classify(name)
		stats.Observe(result)

		if !result.Accepted() {
			r.logger.Debug("unparseable file", "file", name, "shape", result.Shape.String(), "reason", string(result.Reason))
			continue
		}

		id := result.Identity
		r.logger.Debug("parsed file",
			"file", name,
			"shape", id.Shape.String(),
			"key", id.Key(),
			"priority", id.Priority)

		if id.Priority <= 0 {
			stats.Discarded++
			continue
		}

		if _, exists := set.Get(id.Key()); exists {
			stats.Superseded++
		}
		set.Offer(id, r.tieBreak)
	}

	return set, stats
}

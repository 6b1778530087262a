package scanner

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Shape identifies which naming form a filename was recognized as
type Shape int

const (
	ShapeNone      Shape = iota
	ShapeBroadcast       // TITLE.NN.BROADCAST.DATE.EXT
	ShapeCompact         // TITLE<episode><POSTFIX?>.EXT
)

func (s Shape) String() string {
	switch s {
	case ShapeBroadcast:
		return "broadcast"
	case ShapeCompact:
		return "compact"
	default:
		return "none"
	}
}

// RejectReason explains why a filename produced no identity
type RejectReason string

const (
	RejectSegmentCount RejectReason = "unrecognized segment count"
	RejectNoEpisode    RejectReason = "no trailing episode number"
	RejectBadEpisode   RejectReason = "episode number out of range"
	RejectEmptyTitle   RejectReason = "empty title"
)

// SeasonSource selects which string the season suffix rule inspects for
// compact names.
type SeasonSource string

const (
	// SeasonFromTitle applies the rule to the title left after the
	// postfix and episode digits are removed.
	SeasonFromTitle SeasonSource = "title"
	// SeasonFromStrippedBase applies the rule to the base right after the
	// postfix is removed, before the episode digits are split off.
	SeasonFromStrippedBase SeasonSource = "stripped_base"
)

const (
	broadcastBasePriority = 10
	compactBasePriority   = 1
	postfixBonus          = 1
)

// Identity is the normalized identity of one raw file
type Identity struct {
	Title      string
	Season     int
	Episode    int
	Priority   int
	SourceName string // original filename inside the title directory
	Extension  string
	Shape      Shape
	Broadcast  string // broadcaster label, broadcast shape only
	Postfix    string // stripped release tag, compact shape only
}

// Key returns the canonical identity key, e.g. Show_s01_e001
func (id Identity) Key() string {
	return fmt.Sprintf("%s_s%02d_e%03d", id.Title, id.Season, id.Episode)
}

// LinkName returns the output filename for the identity
func (id Identity) LinkName() string {
	return id.Key() + "." + id.Extension
}

// Result is the outcome of classifying one filename: either an accepted
// Identity or a RejectReason.
type Result struct {
	Name     string
	Shape    Shape
	Identity Identity
	Reason   RejectReason
}

// Accepted reports whether the filename produced an identity
func (r Result) Accepted() bool {
	return r.Reason == ""
}

// Options configures the classifier and resolver
type Options struct {
	Postfixes       []string
	Broadcast       map[string]int
	SeasonSource    SeasonSource
	TieBreak        TieBreak
	NormalizeTitles bool
}

// DefaultOptions mirrors the defaults of the config package
func DefaultOptions() Options {
	return Options{
		Postfixes:    DefaultPostfixes,
		Broadcast:    map[string]int{"ATX": 3, "BS11": 3, "MX": -2},
		SeasonSource: SeasonFromTitle,
		TieBreak:     TieBreakLexical,
	}
}

// Classifier turns raw filenames into identities. It holds no mutable
// state and may be shared between goroutines.
type Classifier struct {
	patterns     *Patterns
	broadcast    BroadcastTable
	seasonSource SeasonSource
	normalize    bool
}

// NewClassifier builds a classifier from opts
func NewClassifier(opts Options) (*Classifier, error) {
	patterns, err := NewPatterns(opts.Postfixes)
	if err != nil {
		return nil, err
	}

	source := opts.SeasonSource
	switch source {
	case "":
		source = SeasonFromTitle
	case SeasonFromTitle, SeasonFromStrippedBase:
	default:
		return nil, fmt.Errorf("unknown season source: %q", source)
	}

	table := make(BroadcastTable, len(opts.Broadcast))
	for label, adj := range opts.Broadcast {
		table[label] = adj
	}

	return &Classifier{
		patterns:     patterns,
		broadcast:    table,
		seasonSource: source,
		normalize:    opts.NormalizeTitles,
	}, nil
}

// Classify parses one filename. Broadcast-shaped names are tried first,
// then compact names; anything else is rejected.
func (c *Classifier) Classify(name string) Result {
	parts := strings.Split(name, ".")

	switch {
	case len(parts) == 5 && isDigits(parts[1]):
		return c.classifyBroadcast(name, parts)
	case len(parts) == 2:
		return c.classifyCompact(name, parts)
	default:
		return reject(name, ShapeNone, RejectSegmentCount)
	}
}

// classifyBroadcast handles TITLE.NN.BROADCAST.DATE.EXT
func (c *Classifier) classifyBroadcast(name string, parts []string) Result {
	title := c.title(parts[0])
	if title == "" {
		return reject(name, ShapeBroadcast, RejectEmptyTitle)
	}

	episode, err := strconv.Atoi(parts[1])
	if err != nil {
		return reject(name, ShapeBroadcast, RejectBadEpisode)
	}

	broadcast := parts[2]
	return Result{
		Name:  name,
		Shape: ShapeBroadcast,
		Identity: Identity{
			Title:      title,
			Season:     c.patterns.SeasonOf(title),
			Episode:    episode,
			Priority:   broadcastBasePriority + c.broadcast.Priority(broadcast),
			SourceName: name,
			Extension:  parts[4],
			Shape:      ShapeBroadcast,
			Broadcast:  broadcast,
		},
	}
}

// classifyCompact handles TITLE<episode><POSTFIX?>.EXT
func (c *Classifier) classifyCompact(name string, parts []string) Result {
	priority := compactBasePriority

	base, postfix, stripped := c.patterns.StripPostfix(parts[0])
	if stripped {
		priority += postfixBonus
	}

	head, digits, ok := c.patterns.SplitNumber(base)
	if !ok {
		return reject(name, ShapeCompact, RejectNoEpisode)
	}

	episode, err := strconv.Atoi(digits)
	if err != nil {
		return reject(name, ShapeCompact, RejectBadEpisode)
	}

	title := c.title(strings.TrimSuffix(head, "_"))
	if title == "" {
		return reject(name, ShapeCompact, RejectEmptyTitle)
	}

	season := c.patterns.SeasonOf(title)
	if c.seasonSource == SeasonFromStrippedBase {
		season = c.patterns.SeasonOf(base)
	}

	return Result{
		Name:  name,
		Shape: ShapeCompact,
		Identity: Identity{
			Title:      title,
			Season:     season,
			Episode:    episode,
			Priority:   priority,
			SourceName: name,
			Extension:  parts[1],
			Shape:      ShapeCompact,
			Postfix:    postfix,
		},
	}
}

func (c *Classifier) title(s string) string {
	if c.normalize {
		return norm.NFC.String(s)
	}
	return s
}

func reject(name string, shape Shape, reason RejectReason) Result {
	return Result{Name: name, Shape: shape, Reason: reason}
}

// isDigits reports whether s is a non-empty run of ASCII digits
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

package scanner

import (
	"testing"
)

func newTestClassifier(t *testing.T, mutate func(*Options)) *Classifier {
	t.Helper()
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	c, err := NewClassifier(opts)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return c
}

func TestClassifyAccepted(t *testing.T) {
	c := newTestClassifier(t, nil)

	tests := []struct {
		name     string
		input    string
		expected Identity
	}{
		{
			"broadcast with known label",
			"Show.1.ATX.20230101.mkv",
			Identity{Title: "Show", Season: 1, Episode: 1, Priority: 13, Extension: "mkv", Shape: ShapeBroadcast, Broadcast: "ATX"},
		},
		{
			"broadcast with penalized label",
			"Show.1.MX.20230102.mkv",
			Identity{Title: "Show", Season: 1, Episode: 1, Priority: 8, Extension: "mkv", Shape: ShapeBroadcast, Broadcast: "MX"},
		},
		{
			"broadcast with unknown label",
			"Title.07.BROADCAST.20230101.mkv",
			Identity{Title: "Title", Season: 1, Episode: 7, Priority: 10, Extension: "mkv", Shape: ShapeBroadcast, Broadcast: "BROADCAST"},
		},
		{
			"broadcast with season suffix",
			"Show2.03.BS11.20230101.ts",
			Identity{Title: "Show2", Season: 2, Episode: 3, Priority: 13, Extension: "ts", Shape: ShapeBroadcast, Broadcast: "BS11"},
		},
		{
			"compact with postfix",
			"Title05HD.mkv",
			Identity{Title: "Title", Season: 1, Episode: 5, Priority: 2, Extension: "mkv", Shape: ShapeCompact, Postfix: "HD"},
		},
		{
			"compact without postfix",
			"Title05.mkv",
			Identity{Title: "Title", Season: 1, Episode: 5, Priority: 1, Extension: "mkv", Shape: ShapeCompact},
		},
		{
			"compact with underscore separator",
			"Show_12.mp4",
			Identity{Title: "Show", Season: 1, Episode: 12, Priority: 1, Extension: "mp4", Shape: ShapeCompact},
		},
		{
			"compact with season suffix",
			"Show2_05CS.mkv",
			Identity{Title: "Show2", Season: 2, Episode: 5, Priority: 2, Extension: "mkv", Shape: ShapeCompact, Postfix: "CS"},
		},
		{
			"compact with BSD postfix",
			"Show01BSD.avi",
			Identity{Title: "Show", Season: 1, Episode: 1, Priority: 2, Extension: "avi", Shape: ShapeCompact, Postfix: "BSD"},
		},
		{
			"postfix only stripped at the end",
			"HDShow01.mkv",
			Identity{Title: "HDShow", Season: 1, Episode: 1, Priority: 1, Extension: "mkv", Shape: ShapeCompact},
		},
		{
			"episode zero",
			"Show00.mkv",
			Identity{Title: "Show", Season: 1, Episode: 0, Priority: 1, Extension: "mkv", Shape: ShapeCompact},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Classify(tt.input)
			if !result.Accepted() {
				t.Fatalf("Classify(%q) rejected: %s", tt.input, result.Reason)
			}
			expected := tt.expected
			expected.SourceName = tt.input
			if result.Identity != expected {
				t.Errorf("Classify(%q) =\n  %+v\nwant\n  %+v", tt.input, result.Identity, expected)
			}
			if result.Shape != expected.Shape {
				t.Errorf("Classify(%q) shape = %v, want %v", tt.input, result.Shape, expected.Shape)
			}
		})
	}
}

func TestClassifyRejected(t *testing.T) {
	c := newTestClassifier(t, nil)

	tests := []struct {
		input  string
		shape  Shape
		reason RejectReason
	}{
		{"readme", ShapeNone, RejectSegmentCount},
		{"Show.S01E01.mkv", ShapeNone, RejectSegmentCount},
		{"Show.01.ATX.mkv", ShapeNone, RejectSegmentCount},
		{"Show.01.ATX.20230101.extra.mkv", ShapeNone, RejectSegmentCount},
		{"Show.xx.ATX.20230101.mkv", ShapeNone, RejectSegmentCount},
		{"Show..ATX.20230101.mkv", ShapeNone, RejectSegmentCount},
		{".01.ATX.20230101.mkv", ShapeBroadcast, RejectEmptyTitle},
		{"Show.99999999999999999999.ATX.20230101.mkv", ShapeBroadcast, RejectBadEpisode},
		{"Movie.mkv", ShapeCompact, RejectNoEpisode},
		{"ShowHD.mkv", ShapeCompact, RejectNoEpisode},
		{"05.mkv", ShapeCompact, RejectEmptyTitle},
		{"_05HD.mkv", ShapeCompact, RejectEmptyTitle},
		{"Show99999999999999999999.mkv", ShapeCompact, RejectBadEpisode},
	}

	for _, tt := range tests {
		result := c.Classify(tt.input)
		if result.Accepted() {
			t.Errorf("Classify(%q) accepted, want rejection %q", tt.input, tt.reason)
			continue
		}
		if result.Shape != tt.shape || result.Reason != tt.reason {
			t.Errorf("Classify(%q) = (%v, %q), want (%v, %q)", tt.input, result.Shape, result.Reason, tt.shape, tt.reason)
		}
		if result.Identity != (Identity{}) {
			t.Errorf("Classify(%q) populated identity fields on rejection: %+v", tt.input, result.Identity)
		}
		if result.Identity.Priority != 0 {
			t.Errorf("Classify(%q) priority = %d, want 0", tt.input, result.Identity.Priority)
		}
	}
}

// Foo3HD overlaps the season suffix rule and the episode number: the
// trailing 3 is the episode, and only the stripped_base variant also reads
// it as the season.
func TestClassifySeasonEpisodeOverlap(t *testing.T) {
	byTitle := newTestClassifier(t, nil).Classify("Foo3HD.mp4")
	if !byTitle.Accepted() {
		t.Fatalf("Foo3HD.mp4 rejected: %s", byTitle.Reason)
	}
	if got := byTitle.Identity; got.Title != "Foo" || got.Season != 1 || got.Episode != 3 || got.Priority != 2 {
		t.Errorf("season from title: got %+v", got)
	}
	if key := byTitle.Identity.Key(); key != "Foo_s01_e003" {
		t.Errorf("season from title: key %q", key)
	}

	byBase := newTestClassifier(t, func(o *Options) { o.SeasonSource = SeasonFromStrippedBase }).Classify("Foo3HD.mp4")
	if !byBase.Accepted() {
		t.Fatalf("Foo3HD.mp4 rejected: %s", byBase.Reason)
	}
	if got := byBase.Identity; got.Title != "Foo" || got.Season != 3 || got.Episode != 3 {
		t.Errorf("season from stripped base: got %+v", got)
	}
	if key := byBase.Identity.Key(); key != "Foo_s03_e003" {
		t.Errorf("season from stripped base: key %q", key)
	}
}

func TestClassifyWithoutBSDPostfix(t *testing.T) {
	c := newTestClassifier(t, func(o *Options) { o.Postfixes = []string{"HD", "CS"} })

	result := c.Classify("Show01BSD.mkv")
	if result.Accepted() {
		t.Fatalf("expected rejection when BSD is not a postfix, got %+v", result.Identity)
	}
	if result.Reason != RejectNoEpisode {
		t.Errorf("reason = %q, want %q", result.Reason, RejectNoEpisode)
	}
}

func TestClassifyBroadcastPenaltyCanReachZero(t *testing.T) {
	c := newTestClassifier(t, func(o *Options) { o.Broadcast = map[string]int{"MX": -10, "XX": -12} })

	zero := c.Classify("Show.01.MX.20230101.mkv")
	if !zero.Accepted() || zero.Identity.Priority != 0 {
		t.Errorf("expected accepted identity with priority 0, got %+v (%s)", zero.Identity, zero.Reason)
	}

	negative := c.Classify("Show.01.XX.20230101.mkv")
	if !negative.Accepted() || negative.Identity.Priority != -2 {
		t.Errorf("expected accepted identity with priority -2, got %+v (%s)", negative.Identity, negative.Reason)
	}
}

func TestClassifyNormalizesTitles(t *testing.T) {
	decomposed := "Cafe\u0301"
	composed := "Caf\u00e9"

	plain := newTestClassifier(t, nil)
	if got := plain.Classify(decomposed + "01.mkv").Identity.Title; got != decomposed {
		t.Errorf("titles must be kept as-is by default, got %q", got)
	}

	normalizing := newTestClassifier(t, func(o *Options) { o.NormalizeTitles = true })
	a := normalizing.Classify(decomposed + "01.mkv").Identity
	b := normalizing.Classify(composed + "01.mkv").Identity
	if a.Title != composed || a.Key() != b.Key() {
		t.Errorf("expected both spellings to share a key, got %q and %q", a.Key(), b.Key())
	}
}

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		id       Identity
		key      string
		linkName string
	}{
		{Identity{Title: "Show", Season: 1, Episode: 1, Extension: "mkv"}, "Show_s01_e001", "Show_s01_e001.mkv"},
		{Identity{Title: "Show2", Season: 2, Episode: 123, Extension: "mp4"}, "Show2_s02_e123", "Show2_s02_e123.mp4"},
		{Identity{Title: "Long", Season: 9, Episode: 1000, Extension: "ts"}, "Long_s09_e1000", "Long_s09_e1000.ts"},
	}

	for _, tt := range tests {
		if got := tt.id.Key(); got != tt.key {
			t.Errorf("Key() = %q, want %q", got, tt.key)
		}
		if got := tt.id.LinkName(); got != tt.linkName {
			t.Errorf("LinkName() = %q, want %q", got, tt.linkName)
		}
	}
}

func TestNewClassifierRejectsUnknownSeasonSource(t *testing.T) {
	opts := DefaultOptions()
	opts.SeasonSource = "episode"
	if _, err := NewClassifier(opts); err == nil {
		t.Error("expected error for unknown season source")
	}
}

func TestShapeString(t *testing.T) {
	if ShapeBroadcast.String() != "broadcast" || ShapeCompact.String() != "compact" || ShapeNone.String() != "none" {
		t.Error("unexpected shape names")
	}
}

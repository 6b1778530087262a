package linker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nomadcxx/jellylink/internal/scanner"
)

// setupTitle creates inputRoot/title with the given files and returns the
// resolved episode set for them
func setupTitle(t *testing.T, inputRoot, title string, files ...string) *scanner.EpisodeSet {
	t.Helper()
	dir := filepath.Join(inputRoot, title)
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte(f), 0644))
	}

	opts := scanner.DefaultOptions()
	c, err := scanner.NewClassifier(opts)
	require.NoError(t, err)
	r, err := scanner.NewResolver(c, opts.TieBreak, nil)
	require.NoError(t, err)
	set, _ := r.Resolve(files)
	return set
}

func newLinker(t *testing.T, in, out string, cfg Config) *Linker {
	t.Helper()
	l, err := New(in, out, cfg, nil)
	require.NoError(t, err)
	return l
}

func TestMaterializeSymlinks(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "library")

	set := setupTitle(t, in, "Show", "Show.1.MX.20230102.mkv", "Show.1.ATX.20230101.mkv", "Show02HD.mkv")
	l := newLinker(t, in, out, DefaultConfig())

	result, err := l.Materialize("Show", set)
	require.NoError(t, err)

	assert.Equal(t, 2, result.CreatedFiles)
	assert.Equal(t, 0, result.ExistedFiles)
	assert.Equal(t, 1, result.CreatedDirs)

	target, err := os.Readlink(filepath.Join(out, "Show", "Show_s01_e001.mkv"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(in, "Show", "Show.1.ATX.20230101.mkv"), target)

	target, err = os.Readlink(filepath.Join(out, "Show", "Show_s01_e002.mkv"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(in, "Show", "Show02HD.mkv"), target)
}

func TestMaterializeIsIdempotent(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()

	set := setupTitle(t, in, "Show", "Show01.mkv", "Show02.mkv")
	l := newLinker(t, in, out, DefaultConfig())

	first, err := l.Materialize("Show", set)
	require.NoError(t, err)
	assert.Equal(t, 2, first.CreatedFiles)
	assert.Equal(t, 1, first.CreatedDirs)

	second, err := l.Materialize("Show", set)
	require.NoError(t, err)
	assert.Equal(t, 0, second.CreatedFiles)
	assert.Equal(t, 2, second.ExistedFiles)
	assert.Equal(t, 0, second.CreatedDirs)
	assert.Empty(t, second.Operations)
}

func TestMaterializeNeverReplacesExistingEntries(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()

	set := setupTitle(t, in, "Show", "Show01.mkv", "Show02.mkv")
	require.NoError(t, os.MkdirAll(filepath.Join(out, "Show"), 0755))

	// A regular file and a dangling link both occupy destinations
	regular := filepath.Join(out, "Show", "Show_s01_e001.mkv")
	require.NoError(t, os.WriteFile(regular, []byte("keep me"), 0644))
	dangling := filepath.Join(out, "Show", "Show_s01_e002.mkv")
	require.NoError(t, os.Symlink(filepath.Join(in, "gone.mkv"), dangling))

	l := newLinker(t, in, out, DefaultConfig())
	result, err := l.Materialize("Show", set)
	require.NoError(t, err)

	assert.Equal(t, 0, result.CreatedFiles)
	assert.Equal(t, 2, result.ExistedFiles)
	assert.Equal(t, 0, result.CreatedDirs)

	data, err := os.ReadFile(regular)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))

	target, err := os.Readlink(dangling)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(in, "gone.mkv"), target)
}

func TestMaterializeDryRun(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "library")

	set := setupTitle(t, in, "Show", "Show01.mkv", "Show02.mkv")
	cfg := DefaultConfig()
	cfg.DryRun = true
	l := newLinker(t, in, out, cfg)

	result, err := l.Materialize("Show", set)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 2, result.CreatedFiles)
	assert.Equal(t, 1, result.CreatedDirs)
	assert.Len(t, result.Operations, 3)

	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err), "dry run must not touch the output root")
}

func TestMaterializeRelativeLinks(t *testing.T) {
	base := t.TempDir()
	in := filepath.Join(base, "recordings")
	out := filepath.Join(base, "library")

	set := setupTitle(t, in, "Show", "Show01.mkv")
	cfg := DefaultConfig()
	cfg.Mode = ModeRelative
	l := newLinker(t, in, out, cfg)

	_, err := l.Materialize("Show", set)
	require.NoError(t, err)

	link := filepath.Join(out, "Show", "Show_s01_e001.mkv")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("..", "..", "recordings", "Show", "Show01.mkv"), target)

	data, err := os.ReadFile(link)
	require.NoError(t, err)
	assert.Equal(t, "Show01.mkv", string(data))
}

func TestMaterializeHardlinks(t *testing.T) {
	base := t.TempDir()
	in := filepath.Join(base, "recordings")
	out := filepath.Join(base, "library")

	set := setupTitle(t, in, "Show", "Show01.mkv")
	cfg := DefaultConfig()
	cfg.Mode = ModeHardlink
	l := newLinker(t, in, out, cfg)

	result, err := l.Materialize("Show", set)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CreatedFiles)

	src, err := os.Stat(filepath.Join(in, "Show", "Show01.mkv"))
	require.NoError(t, err)
	dst, err := os.Lstat(filepath.Join(out, "Show", "Show_s01_e001.mkv"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(src, dst))
}

func TestMaterializeGroupBySourceDir(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()

	// Title dir name differs from the parsed titles
	set := setupTitle(t, in, "Anthology", "Show01.mkv", "Show2_01.mkv")

	byTitle := newLinker(t, in, filepath.Join(out, "by-title"), DefaultConfig())
	result, err := byTitle.Materialize("Anthology", set)
	require.NoError(t, err)
	assert.Equal(t, 2, result.CreatedDirs)
	assert.FileExists(t, filepath.Join(out, "by-title", "Show", "Show_s01_e001.mkv"))
	assert.FileExists(t, filepath.Join(out, "by-title", "Show2", "Show2_s02_e001.mkv"))

	cfg := DefaultConfig()
	cfg.GroupBy = GroupBySourceDir
	bySource := newLinker(t, in, filepath.Join(out, "by-source"), cfg)
	result, err = bySource.Materialize("Anthology", set)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CreatedDirs)
	assert.FileExists(t, filepath.Join(out, "by-source", "Anthology", "Show_s01_e001.mkv"))
	assert.FileExists(t, filepath.Join(out, "by-source", "Anthology", "Show2_s02_e001.mkv"))
}

func TestMaterializeFailsWhenOutputDirIsAFile(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()

	set := setupTitle(t, in, "Show", "Show01.mkv")
	require.NoError(t, os.WriteFile(filepath.Join(out, "Show"), nil, 0644))

	l := newLinker(t, in, out, DefaultConfig())
	_, err := l.Materialize("Show", set)
	assert.Error(t, err)
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := New("/in", "/out", Config{Mode: "copy"}, nil)
	assert.Error(t, err)

	_, err = New("/in", "/out", Config{GroupBy: "year"}, nil)
	assert.Error(t, err)

	l, err := New("/in", "/out", Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeSymlink, l.config.Mode)
	assert.Equal(t, GroupByTitle, l.config.GroupBy)
}

package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sydlexius/mediarr/internal/cache"
	"github.com/sydlexius/mediarr/internal/filesystem"
	"github.com/sydlexius/mediarr/internal/media"
	"github.com/sydlexius/mediarr/internal/safefs"
	"github.com/sydlexius/mediarr/internal/throttle"
)

type fakeDirEntry struct {
	name string
	dir  bool
}

func (f fakeDirEntry) Name() string               { return f.name }
func (f fakeDirEntry) IsDir() bool                { return f.dir }
func (f fakeDirEntry) Type() fs.FileMode          { return 0 }
func (f fakeDirEntry) Info() (fs.FileInfo, error) { return nil, fs.ErrInvalid }

// fakeFS is an in-memory Lister that counts listings per path, so tests
// can prove which directories a scan actually touched.
type fakeFS struct {
	mu    sync.Mutex
	dirs  map[string][]fs.DirEntry
	fails map[string]error
	calls map[string]int
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		dirs:  make(map[string][]fs.DirEntry),
		fails: make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeFS) addDir(path string, files ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parent := filepath.Dir(path)
	f.dirs[parent] = append(f.dirs[parent], fakeDirEntry{name: filepath.Base(path), dir: true})
	entries := make([]fs.DirEntry, 0, len(files))
	for _, name := range files {
		entries = append(entries, fakeDirEntry{name: name})
	}
	f.dirs[path] = entries
}

func (f *fakeFS) removeDir(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.dirs, path)
	parent := filepath.Dir(path)
	kept := f.dirs[parent][:0]
	for _, e := range f.dirs[parent] {
		if e.Name() != filepath.Base(path) {
			kept = append(kept, e)
		}
	}
	f.dirs[parent] = kept
}

func (f *fakeFS) ListDirectory(_ context.Context, _, path string) ([]fs.DirEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++
	if err, ok := f.fails[path]; ok {
		return nil, err
	}
	entries, ok := f.dirs[path]
	if !ok {
		return nil, &safefs.Error{Op: "list", Path: path, Kind: throttle.Permanent, Err: fs.ErrNotExist}
	}
	out := make([]fs.DirEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (f *fakeFS) StatFile(_ context.Context, _, _ string) (fs.FileInfo, error) {
	return nil, fs.ErrInvalid
}

func (f *fakeFS) listCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestEngine(t *testing.T, fsys safefs.Lister, opts Options) (*Engine, *cache.Store) {
	t.Helper()
	if opts.Sleep == nil {
		opts.Sleep = noSleep
	}
	store := cache.NewStore(t.TempDir(), testLogger())
	return NewEngine(fsys, store, opts, testLogger()), store
}

func TestScanBuildsSnapshot(t *testing.T) {
	fsys := newFakeFS()
	fsys.addDir("/movies/The Matrix (1999) {tmdb-603}", "poster.jpg", "backdrop.jpg", "poster-thumb.jpg")
	fsys.addDir("/movies/Alien (1979)", "poster.png", "logo.png")
	fsys.addDir("/movies/Empty Folder (2020)")

	eng, store := newTestEngine(t, fsys, Options{BatchSize: 10})

	res, err := eng.Scan(context.Background(), "movie", []string{"/movies"}, media.TypePoster, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Mode != "full" {
		t.Errorf("mode = %q, want full", res.Mode)
	}

	snap := res.Snapshot
	if snap.FormatVersion != cache.FormatVersion {
		t.Errorf("format version = %d, want %d", snap.FormatVersion, cache.FormatVersion)
	}
	if len(snap.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(snap.Entries))
	}

	// Sorted by title: Alien, Empty Folder, The Matrix.
	if snap.Entries[0].Title != "Alien (1979)" || snap.Entries[2].Title != "The Matrix (1999) {tmdb-603}" {
		t.Errorf("unexpected order: %q .. %q", snap.Entries[0].Title, snap.Entries[2].Title)
	}

	matrix := snap.Entries[2]
	if !matrix.HasPoster || !matrix.HasBackdrop || matrix.HasLogo {
		t.Errorf("matrix presence = %v/%v/%v", matrix.HasPoster, matrix.HasBackdrop, matrix.HasLogo)
	}
	if matrix.TMDbID != 603 || matrix.Year != 1999 {
		t.Errorf("matrix parsed id=%d year=%d", matrix.TMDbID, matrix.Year)
	}
	if matrix.PosterThumb != "poster-thumb.jpg" {
		t.Errorf("matrix poster thumb = %q", matrix.PosterThumb)
	}

	alien := snap.Entries[0]
	if alien.PosterFile != "poster.png" || !alien.HasLogo {
		t.Errorf("alien poster=%q logo=%v", alien.PosterFile, alien.HasLogo)
	}

	if cp, err := store.LoadCheckpoint("movie"); err != nil || cp != nil {
		t.Errorf("checkpoint after completed scan: %v, %v", cp, err)
	}

	loaded, err := store.LoadSnapshot("movie", media.TypePoster)
	if err != nil || loaded == nil {
		t.Fatalf("LoadSnapshot: %v, %v", loaded, err)
	}
	if len(loaded.Entries) != 3 {
		t.Errorf("persisted entries = %d, want 3", len(loaded.Entries))
	}
}

func TestScanResumeSkipsProcessedDirectories(t *testing.T) {
	fsys := newFakeFS()
	fsys.addDir("/movies/Alpha (2001)", "poster.jpg")
	fsys.addDir("/movies/Beta (2002)", "poster.jpg")
	fsys.addDir("/movies/Gamma (2003)")

	eng, store := newTestEngine(t, fsys, Options{BatchSize: 10})

	done := media.NewEntry("Alpha (2001)", "/movies/Alpha (2001)")
	done.SetHas(media.TypePoster, "poster.jpg")
	cp := &cache.Checkpoint{
		ScanKey:   "movie",
		Roots:     []string{"/movies"},
		Pending:   []string{"/movies/Beta (2002)", "/movies/Gamma (2003)"},
		Processed: []media.Entry{done},
		Cursor:    1,
		StartedAt: time.Now().UTC(),
	}
	if err := store.SaveCheckpoint(cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	res, err := eng.Scan(context.Background(), "movie", []string{"/movies"}, media.TypePoster, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Mode != "resume" {
		t.Errorf("mode = %q, want resume", res.Mode)
	}
	if n := fsys.listCount("/movies/Alpha (2001)"); n != 0 {
		t.Errorf("already-processed directory listed %d times, want 0", n)
	}
	if n := fsys.listCount("/movies"); n != 0 {
		t.Errorf("root re-enumerated %d times during resume, want 0", n)
	}
	if len(res.Snapshot.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(res.Snapshot.Entries))
	}
	if !res.Snapshot.Entries[0].HasPoster {
		t.Error("carried-over entry lost its poster flag")
	}
}

func TestScanRestartsWhenRootsChange(t *testing.T) {
	fsys := newFakeFS()
	fsys.addDir("/movies/Alpha (2001)", "poster.jpg")

	eng, store := newTestEngine(t, fsys, Options{BatchSize: 10})

	cp := &cache.Checkpoint{
		ScanKey: "movie",
		Roots:   []string{"/old-movies"},
		Pending: []string{"/old-movies/Stale"},
	}
	if err := store.SaveCheckpoint(cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	res, err := eng.Scan(context.Background(), "movie", []string{"/movies"}, media.TypePoster, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Mode != "full" {
		t.Errorf("mode = %q, want full", res.Mode)
	}
	if len(res.Snapshot.Entries) != 1 || res.Snapshot.Entries[0].Title != "Alpha (2001)" {
		t.Errorf("unexpected entries: %+v", res.Snapshot.Entries)
	}
}

func TestScanCorruptCheckpointRestarts(t *testing.T) {
	fsys := newFakeFS()
	fsys.addDir("/movies/Alpha (2001)", "poster.jpg")

	dir := t.TempDir()
	store := cache.NewStore(dir, testLogger())
	if err := filesystem.WriteFileAtomic(filepath.Join(dir, "checkpoint_movie.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt checkpoint: %v", err)
	}
	eng := NewEngine(fsys, store, Options{BatchSize: 10, Sleep: noSleep}, testLogger())

	res, err := eng.Scan(context.Background(), "movie", []string{"/movies"}, media.TypePoster, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Mode != "full" {
		t.Errorf("mode = %q, want full", res.Mode)
	}
	if len(res.Snapshot.Entries) != 1 {
		t.Errorf("entries = %d, want 1", len(res.Snapshot.Entries))
	}
}

func TestScanBatchesWithPauses(t *testing.T) {
	fsys := newFakeFS()
	for _, name := range []string{"A (2001)", "B (2002)", "C (2003)", "D (2004)", "E (2005)"} {
		fsys.addDir("/movies/"+name, "poster.jpg")
	}

	var pauses int
	opts := Options{
		BatchSize:  2,
		BatchPause: 2 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			if d != 2*time.Second {
				t.Errorf("pause = %v, want 2s", d)
			}
			pauses++
			return nil
		},
	}
	eng, _ := newTestEngine(t, fsys, opts)

	var reports [][2]int
	report := func(done, total int) { reports = append(reports, [2]int{done, total}) }

	if _, err := eng.Scan(context.Background(), "movie", []string{"/movies"}, media.TypePoster, report); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// 5 directories in batches of 2: pauses between batches only.
	if pauses != 2 {
		t.Errorf("pauses = %d, want 2", pauses)
	}
	last := reports[len(reports)-1]
	if last != [2]int{5, 5} {
		t.Errorf("final progress = %v, want [5 5]", last)
	}
}

func TestScanInterruptionKeepsCommittedBatches(t *testing.T) {
	fsys := newFakeFS()
	for _, name := range []string{"A (2001)", "B (2002)", "C (2003)", "D (2004)"} {
		fsys.addDir("/movies/"+name, "poster.jpg")
	}

	ctx, cancel := context.WithCancel(context.Background())
	opts := Options{
		BatchSize: 2,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			// Interrupt at the first inter-batch pause.
			cancel()
			return ctx.Err()
		},
	}
	eng, store := newTestEngine(t, fsys, opts)

	_, err := eng.Scan(ctx, "movie", []string{"/movies"}, media.TypePoster, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Scan error = %v, want context.Canceled", err)
	}

	cp, err := store.LoadCheckpoint("movie")
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if cp == nil {
		t.Fatal("checkpoint missing after interruption")
	}
	if len(cp.Processed) != 2 || len(cp.Pending) != 2 {
		t.Errorf("checkpoint processed=%d pending=%d, want 2/2", len(cp.Processed), len(cp.Pending))
	}

	if snap, _ := store.LoadSnapshot("movie", media.TypePoster); snap != nil {
		t.Error("partial scan must not publish a snapshot")
	}
}

func TestScanTransientFailureMarksUnscanned(t *testing.T) {
	fsys := newFakeFS()
	fsys.addDir("/movies/Good (2001)", "poster.jpg")
	fsys.addDir("/movies/Flaky (2002)", "poster.jpg")
	fsys.fails["/movies/Flaky (2002)"] = &safefs.Error{
		Op: "list", Path: "/movies/Flaky (2002)", Kind: throttle.Transient, Err: errors.New("input/output error"),
	}

	eng, _ := newTestEngine(t, fsys, Options{BatchSize: 10})

	res, err := eng.Scan(context.Background(), "movie", []string{"/movies"}, media.TypePoster, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Unscanned != 1 {
		t.Errorf("unscanned = %d, want 1", res.Unscanned)
	}
	if len(res.Snapshot.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(res.Snapshot.Entries))
	}
	for _, e := range res.Snapshot.Entries {
		if e.Title == "Flaky (2002)" {
			if !e.Unscanned || e.HasPoster {
				t.Errorf("flaky entry = %+v", e)
			}
		}
	}
}

func TestScanPermanentFailureDropsDirectory(t *testing.T) {
	fsys := newFakeFS()
	fsys.addDir("/movies/Good (2001)", "poster.jpg")
	fsys.addDir("/movies/Gone (2002)")
	fsys.fails["/movies/Gone (2002)"] = &safefs.Error{
		Op: "list", Path: "/movies/Gone (2002)", Kind: throttle.Permanent, Err: fs.ErrNotExist,
	}

	eng, _ := newTestEngine(t, fsys, Options{BatchSize: 10})

	res, err := eng.Scan(context.Background(), "movie", []string{"/movies"}, media.TypePoster, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Snapshot.Entries) != 1 || res.Snapshot.Entries[0].Title != "Good (2001)" {
		t.Errorf("entries = %+v, want only Good (2001)", res.Snapshot.Entries)
	}
}

func TestDeriveReusesScanWithoutFilesystem(t *testing.T) {
	fsys := newFakeFS()
	fsys.addDir("/movies/A (2001)", "poster.jpg")
	fsys.addDir("/movies/B (2002)", "backdrop.jpg")

	eng, store := newTestEngine(t, fsys, Options{BatchSize: 10})

	res, err := eng.Scan(context.Background(), "movie", []string{"/movies"}, media.TypePoster, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	before := fsys.listCount("/movies")
	derived, err := eng.Derive(res.Snapshot, media.TypeBackdrop)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if got := fsys.listCount("/movies"); got != before {
		t.Error("derivation touched the filesystem")
	}

	if derived.ActiveType != media.TypeBackdrop {
		t.Errorf("active type = %q", derived.ActiveType)
	}
	if !derived.CompletedAt.Equal(res.Snapshot.CompletedAt) {
		t.Error("derivation must keep the source completion time")
	}
	if len(derived.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(derived.Entries))
	}
	// A has a poster but no backdrop; B is the reverse. Both visible.
	if derived.Entries[0].HasBackdrop || !derived.Entries[1].HasBackdrop {
		t.Errorf("backdrop flags = %v/%v", derived.Entries[0].HasBackdrop, derived.Entries[1].HasBackdrop)
	}

	// Derivation is idempotent: deriving again yields the same snapshot.
	again, err := eng.Derive(res.Snapshot, media.TypeBackdrop)
	if err != nil {
		t.Fatalf("second Derive: %v", err)
	}
	a, _ := json.Marshal(derived)
	b, _ := json.Marshal(again)
	if string(a) != string(b) {
		t.Error("repeated derivation differs")
	}

	persisted, err := store.LoadSnapshot("movie", media.TypeBackdrop)
	if err != nil || persisted == nil {
		t.Fatalf("derived snapshot not persisted: %v, %v", persisted, err)
	}
}

func TestDeriveRejectsLegacySnapshots(t *testing.T) {
	eng, _ := newTestEngine(t, newFakeFS(), Options{})
	legacy := &cache.Snapshot{FormatVersion: 1, Section: "movie", ActiveType: media.TypePoster}
	if _, err := eng.Derive(legacy, media.TypeBackdrop); !errors.Is(err, ErrDerivationUnsupported) {
		t.Errorf("Derive legacy = %v, want ErrDerivationUnsupported", err)
	}
}

func TestRefreshScansOnlyNewDirectories(t *testing.T) {
	fsys := newFakeFS()
	fsys.addDir("/movies/Kept (2001)", "poster.jpg")
	fsys.addDir("/movies/Gone (2002)", "poster.jpg")

	eng, _ := newTestEngine(t, fsys, Options{BatchSize: 10})

	first, err := eng.Scan(context.Background(), "movie", []string{"/movies"}, media.TypePoster, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	fsys.removeDir("/movies/Gone (2002)")
	fsys.addDir("/movies/New (2003)", "backdrop.jpg")
	keptBefore := fsys.listCount("/movies/Kept (2001)")

	res, err := eng.Refresh(context.Background(), first.Snapshot, media.TypePoster, nil)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if res.NewEntries != 1 || res.RemovedEntries != 1 {
		t.Errorf("new=%d removed=%d, want 1/1", res.NewEntries, res.RemovedEntries)
	}
	if got := fsys.listCount("/movies/Kept (2001)"); got != keptBefore {
		t.Error("refresh re-listed an unchanged directory")
	}

	titles := make([]string, 0, len(res.Snapshot.Entries))
	for _, e := range res.Snapshot.Entries {
		titles = append(titles, e.Title)
	}
	want := []string{"Kept (2001)", "New (2003)"}
	if len(titles) != 2 || titles[0] != want[0] || titles[1] != want[1] {
		t.Errorf("titles = %v, want %v", titles, want)
	}
	if !res.Snapshot.Entries[1].HasBackdrop {
		t.Error("new directory's presence flags not captured")
	}
}

func TestRefreshClearsStaleCheckpoint(t *testing.T) {
	fsys := newFakeFS()
	fsys.addDir("/movies/Kept (2001)", "poster.jpg")
	fsys.addDir("/movies/Gone (2002)", "poster.jpg")

	eng, store := newTestEngine(t, fsys, Options{BatchSize: 10})

	first, err := eng.Scan(context.Background(), "movie", []string{"/movies"}, media.TypePoster, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// An interrupted full scan left a checkpoint still naming the
	// directory the refresh is about to drop.
	cp := &cache.Checkpoint{
		ScanKey:   "movie",
		Roots:     []string{"/movies"},
		Pending:   []string{"/movies/Gone (2002)"},
		StartedAt: time.Now().UTC(),
	}
	if err := store.SaveCheckpoint(cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	fsys.removeDir("/movies/Gone (2002)")
	if _, err := eng.Refresh(context.Background(), first.Snapshot, media.TypePoster, nil); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if cp, err := store.LoadCheckpoint("movie"); err != nil || cp != nil {
		t.Errorf("checkpoint after refresh = %v, %v, want none", cp, err)
	}
}

func TestScanSkipsUnlistableRoot(t *testing.T) {
	fsys := newFakeFS()
	fsys.addDir("/movies/A (2001)", "poster.jpg")
	fsys.fails["/mount-gone"] = &safefs.Error{
		Op: "list", Path: "/mount-gone", Kind: throttle.Transient, Err: errors.New("host is down"),
	}

	eng, _ := newTestEngine(t, fsys, Options{BatchSize: 10})

	res, err := eng.Scan(context.Background(), "movie", []string{"/movies", "/mount-gone"}, media.TypePoster, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Snapshot.Entries) != 1 {
		t.Errorf("entries = %d, want 1", len(res.Snapshot.Entries))
	}
}

func TestScanEnrichesWithIDLookup(t *testing.T) {
	fsys := newFakeFS()
	fsys.addDir("/movies/No Marker Movie (2010)", "poster.jpg")

	eng, _ := newTestEngine(t, fsys, Options{BatchSize: 10})
	eng.SetIDLookup(func(path string) int {
		if filepath.Base(path) == "No Marker Movie (2010)" {
			return 4242
		}
		return 0
	})

	res, err := eng.Scan(context.Background(), "movie", []string{"/movies"}, media.TypePoster, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Snapshot.Entries[0].TMDbID != 4242 {
		t.Errorf("tmdb id = %d, want 4242", res.Snapshot.Entries[0].TMDbID)
	}
}

func TestComputeStats(t *testing.T) {
	snap := &cache.Snapshot{
		ActiveType: media.TypePoster,
		Entries: []media.Entry{
			{Title: "Has", HasPoster: true},
			{Title: "Missing", TMDbID: 1},
			{Title: "Unavailable", TMDbID: 2},
			{Title: "Flaky", Unscanned: true},
		},
	}
	lookup := func(_ media.Kind, tmdbID int, _ media.Type) bool { return tmdbID == 2 }

	st := ComputeStats(snap, media.KindMovie, lookup)
	want := Stats{Total: 4, WithArtwork: 1, Missing: 1, Unavailable: 1, Unscanned: 1}
	if st != want {
		t.Errorf("stats = %+v, want %+v", st, want)
	}

	// Without the lookup, confirmed-unavailable items count as missing.
	st = ComputeStats(snap, media.KindMovie, nil)
	if st.Missing != 2 || st.Unavailable != 0 {
		t.Errorf("stats without lookup = %+v", st)
	}
}

// Guards the end-to-end derivation example: one listing that sees a
// poster in A and a backdrop in B answers both artwork-type queries.
func TestSingleListingAnswersBothTypes(t *testing.T) {
	fsys := newFakeFS()
	fsys.addDir("/movies/A (2001)", "poster.jpg")
	fsys.addDir("/movies/B (2002)", "backdrop.jpg")

	eng, _ := newTestEngine(t, fsys, Options{BatchSize: 10})

	res, err := eng.Scan(context.Background(), "movie", []string{"/movies"}, media.TypePoster, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	posterStats := ComputeStats(res.Snapshot, media.KindMovie, nil)
	if posterStats.WithArtwork != 1 || posterStats.Missing != 1 {
		t.Errorf("poster stats = %+v", posterStats)
	}

	derived, err := eng.Derive(res.Snapshot, media.TypeBackdrop)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	backdropStats := ComputeStats(derived, media.KindMovie, nil)
	if backdropStats.WithArtwork != 1 || backdropStats.Missing != 1 {
		t.Errorf("backdrop stats = %+v", backdropStats)
	}

	// Each directory was listed exactly once for both answers.
	for _, dir := range []string{"/movies/A (2001)", "/movies/B (2002)"} {
		if n := fsys.listCount(dir); n != 1 {
			t.Errorf("%s listed %d times, want 1", dir, n)
		}
	}
}

func TestSpuriousEntriesExcludedByAccessor(t *testing.T) {
	// The engine trusts its Lister to pre-filter junk; this guards the
	// real accessor's filter against the names SMB shares produce.
	for _, name := range []string{"@eaDir", "#recycle", ".DS_Store", "Thumbs.db", "~$draft.docx"} {
		if !safefs.IsSpurious(name) {
			t.Errorf("IsSpurious(%q) = false", name)
		}
	}
	if safefs.IsSpurious("The Matrix (1999)") {
		t.Error("legitimate directory flagged spurious")
	}
}

func TestScanSnapshotOnDiskShape(t *testing.T) {
	fsys := newFakeFS()
	fsys.addDir("/movies/A (2001)", "poster.jpg")

	dir := t.TempDir()
	store := cache.NewStore(dir, testLogger())
	eng := NewEngine(fsys, store, Options{BatchSize: 10, Sleep: noSleep}, testLogger())

	if _, err := eng.Scan(context.Background(), "movie", []string{"/movies"}, media.TypePoster, nil); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "snapshot_movie_poster.json"))
	if err != nil {
		t.Fatalf("reading snapshot file: %v", err)
	}
	var snap cache.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("snapshot file not valid JSON: %v", err)
	}
	if snap.Section != "movie" || snap.ActiveType != media.TypePoster {
		t.Errorf("snapshot labels = %q/%q", snap.Section, snap.ActiveType)
	}
}

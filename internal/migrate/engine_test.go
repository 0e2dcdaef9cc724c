package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drive-migrate/internal/drive"
	"github.com/tonimelisma/drive-migrate/internal/worklist"
)

// mockAPI is an in-memory Drive. It records every mutating call in order so
// tests can assert exact operation sequences.
type mockAPI struct {
	files    map[string]*drive.File   // by ID
	children map[string][]drive.File  // folder ID -> children
	rootDirs map[string]*drive.File   // folders in "root" by name

	calls []string // e.g. "copy fileA", "move childC"

	failCopy map[string]error // item ID -> error to return from copy
	failMove map[string]error
	nextID   int
}

func newMockAPI() *mockAPI {
	return &mockAPI{
		files:    map[string]*drive.File{},
		children: map[string][]drive.File{},
		rootDirs: map[string]*drive.File{},
		failCopy: map[string]error{},
		failMove: map[string]error{},
	}
}

func (m *mockAPI) addFile(f drive.File) {
	cp := f
	m.files[f.ID] = &cp

	for _, p := range f.Parents {
		m.children[p] = append(m.children[p], f)
	}
}

func (m *mockAPI) newID() string {
	m.nextID++
	return fmt.Sprintf("new%d", m.nextID)
}

func (m *mockAPI) GetFile(_ context.Context, fileID string) (*drive.File, error) {
	f, ok := m.files[fileID]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", fileID, drive.ErrNotFound)
	}

	cp := *f

	return &cp, nil
}

func (m *mockAPI) ListChildren(_ context.Context, folderID string) ([]drive.File, error) {
	m.calls = append(m.calls, "list "+folderID)
	return m.children[folderID], nil
}

func (m *mockAPI) CopyFile(_ context.Context, fileID, _ string) (*drive.File, error) {
	if err := m.failCopy[fileID]; err != nil {
		m.calls = append(m.calls, "copy "+fileID)
		return nil, err
	}

	m.calls = append(m.calls, "copy "+fileID)

	return &drive.File{ID: m.newID(), OwnedByMe: true}, nil
}

func (m *mockAPI) MoveFile(_ context.Context, fileID, newParentID string, _ []string) (*drive.File, error) {
	if err := m.failMove[fileID]; err != nil {
		m.calls = append(m.calls, "move "+fileID)
		return nil, err
	}

	m.calls = append(m.calls, "move "+fileID+" to "+newParentID)

	return m.files[fileID], nil
}

func (m *mockAPI) CreateFolder(_ context.Context, name, parentID string) (*drive.File, error) {
	m.calls = append(m.calls, "mkdir "+name+" in "+parentID)

	f := &drive.File{ID: m.newID(), Name: name, MimeType: drive.MimeFolder, Parents: []string{parentID}, OwnedByMe: true}
	if parentID == "root" {
		m.rootDirs[name] = f
	}

	return f, nil
}

func (m *mockAPI) FindFolder(_ context.Context, name, parentID string) (*drive.File, error) {
	m.calls = append(m.calls, "find "+name+" in "+parentID)

	if parentID == "root" {
		if f, ok := m.rootDirs[name]; ok {
			return f, nil
		}
	}

	return nil, nil
}

func (m *mockAPI) Export(_ context.Context, fileID, _ string) ([]byte, error) {
	m.calls = append(m.calls, "export "+fileID)
	return []byte("exported"), nil
}

func (m *mockAPI) ImportFile(_ context.Context, name, _, _ string, _ []byte) (*drive.File, error) {
	m.calls = append(m.calls, "import "+name)
	return &drive.File{ID: m.newID(), Name: name, OwnedByMe: true}, nil
}

func newTestEngine(t *testing.T, api API, dryRun bool) *Engine {
	t.Helper()

	var j *Journal
	if !dryRun {
		j = newTestJournal(t)
	}

	return New(api, j, "bak", dryRun, slog.Default())
}

func TestRun_FileThenFolderSubtree(t *testing.T) {
	api := newMockAPI()
	api.addFile(drive.File{ID: "fileA", Name: "a.txt", MimeType: "text/plain", Parents: []string{"shared"}})
	api.addFile(drive.File{ID: "folderB", Name: "b", MimeType: drive.MimeFolder, Parents: []string{"shared"}})
	api.addFile(drive.File{ID: "childC", Name: "c.txt", MimeType: "text/plain", Parents: []string{"folderB"}})

	engine := newTestEngine(t, api, false)

	summary, err := engine.Run(context.Background(), []worklist.Item{
		{ID: "fileA", Kind: worklist.KindFile},
		{ID: "folderB", Kind: worklist.KindFolder},
	})
	require.NoError(t, err)

	// folderB's subtree goes first: list, copy bottom-up (childC before
	// folderB), move children-first. Then fileA: copy, move. The backup
	// folder is created once up front and gets the mock's first ID.
	assert.Equal(t, []string{
		"find bak in root",
		"mkdir bak in root",
		"list folderB",
		"copy childC",
		"mkdir b in shared",
		"move childC to new1",
		"move folderB to new1",
		"copy fileA",
		"move fileA to new1",
	}, api.calls)

	assert.Equal(t, 3, summary.Copied)
	assert.Equal(t, 3, summary.Moved)
	assert.Zero(t, summary.Skipped)
	assert.Zero(t, summary.Failed)
}

func TestOrderItems_FoldersFirst(t *testing.T) {
	items := []worklist.Item{
		{ID: "f1", Kind: worklist.KindFile},
		{ID: "d1", Kind: worklist.KindFolder},
		{ID: "f2", Kind: worklist.KindFile},
		{ID: "d2", Kind: worklist.KindFolder},
	}

	got := orderItems(items)
	assert.Equal(t, []worklist.Item{
		{ID: "d1", Kind: worklist.KindFolder},
		{ID: "d2", Kind: worklist.KindFolder},
		{ID: "f1", Kind: worklist.KindFile},
		{ID: "f2", Kind: worklist.KindFile},
	}, got)
}

func TestRun_BackupFolderReused(t *testing.T) {
	api := newMockAPI()
	api.rootDirs["bak"] = &drive.File{ID: "bak1", Name: "bak", MimeType: drive.MimeFolder, OwnedByMe: true}
	api.addFile(drive.File{ID: "fileA", Name: "a.txt", MimeType: "text/plain", Parents: []string{"shared"}})

	engine := newTestEngine(t, api, false)

	_, err := engine.Run(context.Background(), []worklist.Item{{ID: "fileA", Kind: worklist.KindFile}})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"find bak in root",
		"copy fileA",
		"move fileA to bak1",
	}, api.calls)
}

func TestRun_OwnedFileMovedWithoutCopy(t *testing.T) {
	api := newMockAPI()
	api.addFile(drive.File{ID: "mine", Name: "mine.txt", MimeType: "text/plain", Parents: []string{"shared"}, OwnedByMe: true})

	engine := newTestEngine(t, api, false)

	summary, err := engine.Run(context.Background(), []worklist.Item{{ID: "mine", Kind: worklist.KindFile}})
	require.NoError(t, err)

	assert.NotContains(t, api.calls, "copy mine")
	assert.Contains(t, api.calls[len(api.calls)-1], "move mine")
	assert.Zero(t, summary.Copied)
	assert.Equal(t, 1, summary.Moved)
}

func TestRun_NotFoundSkipped(t *testing.T) {
	api := newMockAPI()
	api.addFile(drive.File{ID: "fileA", Name: "a.txt", MimeType: "text/plain", Parents: []string{"shared"}})

	engine := newTestEngine(t, api, false)

	summary, err := engine.Run(context.Background(), []worklist.Item{
		{ID: "ghost", Kind: worklist.KindFile},
		{ID: "fileA", Kind: worklist.KindFile},
	})
	require.NoError(t, err)

	// The missing item never aborts the batch; fileA still migrates.
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Moved)
	assert.Contains(t, api.calls, "copy fileA")
}

func TestRun_TrashedSkipped(t *testing.T) {
	api := newMockAPI()
	api.addFile(drive.File{ID: "binned", Name: "old.txt", MimeType: "text/plain", Parents: []string{"shared"}, Trashed: true})

	engine := newTestEngine(t, api, false)

	summary, err := engine.Run(context.Background(), []worklist.Item{{ID: "binned", Kind: worklist.KindFile}})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.NotContains(t, api.calls, "copy binned")
}

func TestRun_CopyFailureLeavesOriginalInPlace(t *testing.T) {
	api := newMockAPI()
	api.addFile(drive.File{ID: "fileA", Name: "a.bin", MimeType: "application/octet-stream", Parents: []string{"shared"}})
	api.failCopy["fileA"] = drive.ErrForbidden

	engine := newTestEngine(t, api, false)

	summary, err := engine.Run(context.Background(), []worklist.Item{{ID: "fileA", Kind: worklist.KindFile}})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Moved)

	for _, c := range api.calls {
		assert.NotContains(t, c, "move fileA", "original must stay put when the copy failed")
	}
}

func TestRun_SubtreeCopyFailureVetoesMoves(t *testing.T) {
	api := newMockAPI()
	api.addFile(drive.File{ID: "folderB", Name: "b", MimeType: drive.MimeFolder, Parents: []string{"shared"}})
	api.addFile(drive.File{ID: "childC", Name: "c.bin", MimeType: "application/octet-stream", Parents: []string{"folderB"}})
	api.addFile(drive.File{ID: "childD", Name: "d.txt", MimeType: "text/plain", Parents: []string{"folderB"}})
	api.failCopy["childC"] = drive.ErrServerError

	engine := newTestEngine(t, api, false)

	summary, err := engine.Run(context.Background(), []worklist.Item{{ID: "folderB", Kind: worklist.KindFolder}})
	require.NoError(t, err)

	// childD copied fine but nothing moves: moving the originals would carry
	// the uncopied childC out of its tree.
	assert.Positive(t, summary.Failed)
	assert.Zero(t, summary.Moved)

	for _, c := range api.calls {
		assert.NotContains(t, c, "move ")
	}
}

func TestRun_MoveFailureDoesNotStopRemainingMoves(t *testing.T) {
	api := newMockAPI()
	api.addFile(drive.File{ID: "folderB", Name: "b", MimeType: drive.MimeFolder, Parents: []string{"shared"}})
	api.addFile(drive.File{ID: "childC", Name: "c.txt", MimeType: "text/plain", Parents: []string{"folderB"}})
	api.failMove["childC"] = drive.ErrServerError

	engine := newTestEngine(t, api, false)

	summary, err := engine.Run(context.Background(), []worklist.Item{{ID: "folderB", Kind: worklist.KindFolder}})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Moved, "the folder itself still moves")
	assert.Contains(t, api.calls, "move folderB to new1")
}

func TestRun_NativeDocFallsBackToExportImport(t *testing.T) {
	api := newMockAPI()
	api.addFile(drive.File{ID: "doc1", Name: "Notes", MimeType: drive.MimeDocument, Parents: []string{"shared"}})
	api.failCopy["doc1"] = drive.ErrForbidden

	engine := newTestEngine(t, api, false)

	summary, err := engine.Run(context.Background(), []worklist.Item{{ID: "doc1", Kind: worklist.KindFile}})
	require.NoError(t, err)

	assert.Contains(t, api.calls, "export doc1")
	assert.Contains(t, api.calls, "import Notes.docx")
	assert.Equal(t, 1, summary.Copied)
	assert.Equal(t, 1, summary.Moved)
	assert.Zero(t, summary.Failed)
}

func TestRun_RemoteKindWinsOverHint(t *testing.T) {
	api := newMockAPI()
	// Listed in the CSV as a file, actually a folder remotely.
	api.addFile(drive.File{ID: "folderB", Name: "b", MimeType: drive.MimeFolder, Parents: []string{"shared"}})

	engine := newTestEngine(t, api, false)

	_, err := engine.Run(context.Background(), []worklist.Item{{ID: "folderB", Kind: worklist.KindFile}})
	require.NoError(t, err)

	assert.Contains(t, api.calls, "list folderB")
}

func TestRun_RerunSkipsMigratedItems(t *testing.T) {
	api := newMockAPI()
	api.addFile(drive.File{ID: "fileA", Name: "a.txt", MimeType: "text/plain", Parents: []string{"shared"}})

	journal := newTestJournal(t)
	engine := New(api, journal, "bak", false, slog.Default())

	_, err := engine.Run(context.Background(), []worklist.Item{{ID: "fileA", Kind: worklist.KindFile}})
	require.NoError(t, err)

	firstCalls := len(api.calls)

	// Second run against the same journal: the item is already migrated, so
	// no remote call beyond the backup folder lookup happens for it.
	engine = New(api, journal, "bak", false, slog.Default())

	summary, err := engine.Run(context.Background(), []worklist.Item{{ID: "fileA", Kind: worklist.KindFile}})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Copied)
	assert.Zero(t, summary.Moved)
	assert.Equal(t, firstCalls+1, len(api.calls), "only the backup folder lookup")

	runs, err := journal.Runs(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRun_DryRunMutatesNothing(t *testing.T) {
	api := newMockAPI()
	api.addFile(drive.File{ID: "fileA", Name: "a.txt", MimeType: "text/plain", Parents: []string{"shared"}})
	api.addFile(drive.File{ID: "folderB", Name: "b", MimeType: drive.MimeFolder, Parents: []string{"shared"}})
	api.addFile(drive.File{ID: "childC", Name: "c.txt", MimeType: "text/plain", Parents: []string{"folderB"}})

	engine := newTestEngine(t, api, true)

	summary, err := engine.Run(context.Background(), []worklist.Item{
		{ID: "fileA", Kind: worklist.KindFile},
		{ID: "folderB", Kind: worklist.KindFolder},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Planned)
	assert.Zero(t, summary.Copied)
	assert.Zero(t, summary.Moved)

	for _, c := range api.calls {
		assert.NotContains(t, c, "copy ")
		assert.NotContains(t, c, "move ")
		assert.NotContains(t, c, "mkdir ")
		assert.NotContains(t, c, "import ")
	}
}

func TestRun_JournalRecordsOutcomes(t *testing.T) {
	api := newMockAPI()
	api.addFile(drive.File{ID: "fileA", Name: "a.txt", MimeType: "text/plain", Parents: []string{"shared"}})
	api.addFile(drive.File{ID: "fileB", Name: "b.bin", MimeType: "application/octet-stream", Parents: []string{"shared"}})
	api.failCopy["fileB"] = drive.ErrForbidden

	journal := newTestJournal(t)
	engine := New(api, journal, "bak", false, slog.Default())

	_, err := engine.Run(context.Background(), []worklist.Item{
		{ID: "fileA", Kind: worklist.KindFile},
		{ID: "fileB", Kind: worklist.KindFile},
	})
	require.NoError(t, err)

	run, err := journal.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Copied)
	assert.Equal(t, 1, run.Failed)

	outcomes, err := journal.Outcomes(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, StatusMigrated, outcomes[0].Status)
	assert.Equal(t, StatusFailed, outcomes[1].Status)
	assert.Contains(t, outcomes[1].Detail, "copy")
}

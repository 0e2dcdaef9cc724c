// Package migrate implements the ownership migration engine: copy listed
// items into the invoking account's ownership, then move the originals into
// a backup folder.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/drive-migrate/internal/drive"
	"github.com/tonimelisma/drive-migrate/internal/worklist"
)

// rootParent is the Drive alias for the account root folder.
const rootParent = "root"

// Summary is the per-run tally of item outcomes. Copied and Moved count
// individual remote operations (a folder subtree contributes one per node);
// Skipped and Failed count items.
type Summary struct {
	Copied  int
	Moved   int
	Skipped int
	Failed  int
	Planned int
}

// Engine processes work items strictly sequentially. The only suspension
// points are the backoff sleeps inside the client's retry loop.
type Engine struct {
	api        API
	journal    *Journal
	logger     *slog.Logger
	backupName string
	dryRun     bool

	// backupID is resolved once per run and reused for every move, so
	// repeated invocations never create duplicate backup folders.
	backupID string
	runID    int64
}

// New creates an Engine. journal may be nil only when dryRun is set.
func New(api API, journal *Journal, backupName string, dryRun bool, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		api:        api,
		journal:    journal,
		logger:     logger,
		backupName: backupName,
		dryRun:     dryRun,
	}
}

// Run migrates all work items. Per-item failures are recorded and logged
// but never abort the batch; the returned error is non-nil only for faults
// that make the whole run impossible (no backup folder, broken journal).
func (e *Engine) Run(ctx context.Context, items []worklist.Item) (*Summary, error) {
	summary := &Summary{}

	if !e.dryRun {
		runID, err := e.journal.BeginRun(ctx)
		if err != nil {
			return nil, err
		}

		e.runID = runID
	}

	if err := e.ensureBackupFolder(ctx); err != nil {
		return nil, fmt.Errorf("migrate: preparing backup folder: %w", err)
	}

	// Folder subtrees go first: a file listed alongside its own parent
	// folder is then handled inside the subtree walk, and its later row
	// resolves as already moved instead of racing the walk.
	for _, item := range orderItems(items) {
		e.processItem(ctx, item, summary)
	}

	if !e.dryRun {
		if err := e.journal.FinishRun(ctx, e.runID, *summary); err != nil {
			return nil, err
		}
	}

	e.logger.Info("run complete",
		slog.Int("copied", summary.Copied),
		slog.Int("moved", summary.Moved),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Int("planned", summary.Planned),
	)

	return summary, nil
}

// orderItems returns the work items with folder-hinted rows first, each
// group keeping its CSV order.
func orderItems(items []worklist.Item) []worklist.Item {
	ordered := make([]worklist.Item, 0, len(items))

	for _, it := range items {
		if it.Kind == worklist.KindFolder {
			ordered = append(ordered, it)
		}
	}

	for _, it := range items {
		if it.Kind != worklist.KindFolder {
			ordered = append(ordered, it)
		}
	}

	return ordered
}

// ensureBackupFolder resolves the backup folder ID for the run: look up a
// non-trashed folder with the configured name in the account root, create
// it when absent. The ID is cached so every move in the run reuses it.
func (e *Engine) ensureBackupFolder(ctx context.Context) error {
	if e.backupID != "" {
		return nil
	}

	folder, err := e.api.FindFolder(ctx, e.backupName, rootParent)
	if err != nil {
		return err
	}

	if folder != nil {
		e.logger.Info("backup folder exists",
			slog.String("name", e.backupName),
			slog.String("folder_id", folder.ID),
		)
		e.backupID = folder.ID

		return nil
	}

	if e.dryRun {
		e.logger.Info("backup folder would be created", slog.String("name", e.backupName))
		return nil
	}

	created, err := e.api.CreateFolder(ctx, e.backupName, rootParent)
	if err != nil {
		return err
	}

	e.logger.Info("backup folder created",
		slog.String("name", e.backupName),
		slog.String("folder_id", created.ID),
	)
	e.backupID = created.ID

	return nil
}

// processItem handles one work item end to end. Errors are absorbed into
// the summary and journal; nothing propagates to the batch loop.
func (e *Engine) processItem(ctx context.Context, item worklist.Item, summary *Summary) {
	logger := e.logger.With(slog.String("item_id", item.ID))

	if !e.dryRun {
		done, err := e.journal.Migrated(ctx, item.ID)
		if err != nil {
			logger.Warn("journal lookup failed, processing item anyway", slog.String("error", err.Error()))
		} else if done {
			logger.Info("item already migrated in an earlier run, skipping")
			e.record(ctx, Outcome{ItemID: item.ID, Kind: string(item.Kind), Status: StatusSkipped,
				Detail: "already migrated in an earlier run"})
			summary.Skipped++

			return
		}
	}

	f, err := e.api.GetFile(ctx, item.ID)
	if errors.Is(err, drive.ErrNotFound) {
		// Already moved or deleted outside this tool — re-runs hit this path.
		logger.Warn("item not found, treating as already handled")
		e.record(ctx, Outcome{ItemID: item.ID, Kind: string(item.Kind), Status: StatusSkipped,
			Detail: "not found (already moved or deleted)"})
		summary.Skipped++

		return
	}

	if err != nil {
		logger.Error("fetching item metadata failed", slog.String("error", err.Error()))
		e.record(ctx, Outcome{ItemID: item.ID, Kind: string(item.Kind), Status: StatusFailed,
			Detail: "metadata: " + err.Error()})
		summary.Failed++

		return
	}

	if f.Trashed {
		logger.Warn("item is trashed, skipping", slog.String("name", f.Name))
		e.record(ctx, Outcome{ItemID: f.ID, Name: f.Name, Kind: string(item.Kind), Status: StatusSkipped,
			Detail: "trashed"})
		summary.Skipped++

		return
	}

	// The remote mimeType wins over the CSV hint when they disagree.
	if f.IsFolder() {
		e.migrateFolder(ctx, f, summary)
	} else {
		e.migrateFile(ctx, f, summary)
	}
}

// migrateFile copies a single file and moves the original into the backup
// folder.
func (e *Engine) migrateFile(ctx context.Context, f *drive.File, summary *Summary) {
	logger := e.logger.With(slog.String("item_id", f.ID), slog.String("name", f.Name))

	if e.dryRun {
		logger.Info("would copy and move file")
		e.record(ctx, Outcome{ItemID: f.ID, Name: f.Name, Kind: string(worklist.KindFile), Status: StatusPlanned})
		summary.Planned++

		return
	}

	copyID, copied, err := e.copyItem(ctx, f)
	if err != nil {
		logger.Error("copy failed", slog.String("error", err.Error()))
		e.record(ctx, Outcome{ItemID: f.ID, Name: f.Name, Kind: string(worklist.KindFile), Status: StatusFailed,
			Detail: "copy: " + err.Error()})
		summary.Failed++

		return
	}

	if copied {
		logger.Info("copy created", slog.String("copy_id", copyID))
		summary.Copied++
	}

	if err := e.moveToBackup(ctx, f); err != nil {
		logger.Error("move failed", slog.String("error", err.Error()))
		e.record(ctx, Outcome{ItemID: f.ID, Name: f.Name, Kind: string(worklist.KindFile), Status: StatusFailed,
			Detail: "copied but move failed: " + err.Error()})
		summary.Failed++

		return
	}

	summary.Moved++
	e.record(ctx, Outcome{ItemID: f.ID, Name: f.Name, Kind: string(worklist.KindFile), Status: StatusMigrated})
}

// migrateFolder migrates a folder subtree: walk it with an explicit stack,
// copy every node bottom-up (descendants before ancestors), then move the
// originals into the backup folder children-first. Copies always complete
// before any move so no descendant is orphaned by a half-migrated parent.
func (e *Engine) migrateFolder(ctx context.Context, root *drive.File, summary *Summary) {
	logger := e.logger.With(slog.String("item_id", root.ID), slog.String("name", root.Name))

	nodes, err := e.collectSubtree(ctx, root)
	if err != nil {
		logger.Error("listing folder subtree failed", slog.String("error", err.Error()))
		e.record(ctx, Outcome{ItemID: root.ID, Name: root.Name, Kind: string(worklist.KindFolder), Status: StatusFailed,
			Detail: "listing children: " + err.Error()})
		summary.Failed++

		return
	}

	logger.Info("folder subtree collected", slog.Int("nodes", len(nodes)))

	if e.dryRun {
		for i := len(nodes) - 1; i >= 0; i-- {
			n := &nodes[i]
			e.logger.Info("would copy and move",
				slog.String("item_id", n.ID),
				slog.String("name", n.Name),
				slog.Bool("folder", n.IsFolder()),
			)
			e.record(ctx, Outcome{ItemID: n.ID, Name: n.Name, Kind: kindOf(n), Status: StatusPlanned})
			summary.Planned++
		}

		return
	}

	// Copy phase, bottom-up. nodes is in discovery order (every parent
	// precedes its children), so the reverse walk copies leaves first.
	copyFailed := false

	for i := len(nodes) - 1; i >= 0; i-- {
		n := &nodes[i]

		copyID, copied, err := e.copyItem(ctx, n)
		if err != nil {
			e.logger.Error("copy failed",
				slog.String("item_id", n.ID),
				slog.String("name", n.Name),
				slog.String("error", err.Error()),
			)
			e.record(ctx, Outcome{ItemID: n.ID, Name: n.Name, Kind: kindOf(n), Status: StatusFailed,
				Detail: "copy: " + err.Error()})
			summary.Failed++

			copyFailed = true

			continue
		}

		if copied {
			e.logger.Debug("copy created",
				slog.String("item_id", n.ID),
				slog.String("copy_id", copyID),
			)
			summary.Copied++
		}
	}

	// A failed copy anywhere in the subtree vetoes the move phase: moving
	// the originals would carry the uncopied content out of its tree.
	if copyFailed {
		logger.Error("subtree has uncopied items, leaving originals in place")
		e.record(ctx, Outcome{ItemID: root.ID, Name: root.Name, Kind: string(worklist.KindFolder), Status: StatusFailed,
			Detail: "descendant copy failed, originals left in place"})

		return
	}

	// Move phase, children first. Move failures do not stop the remaining
	// moves: an unmoved child inside a moved folder still ends up inside
	// the backup tree.
	moveFailed := false

	for i := len(nodes) - 1; i >= 0; i-- {
		n := &nodes[i]

		if err := e.moveToBackup(ctx, n); err != nil {
			e.logger.Error("move failed",
				slog.String("item_id", n.ID),
				slog.String("name", n.Name),
				slog.String("error", err.Error()),
			)
			e.record(ctx, Outcome{ItemID: n.ID, Name: n.Name, Kind: kindOf(n), Status: StatusFailed,
				Detail: "copied but move failed: " + err.Error()})
			summary.Failed++

			moveFailed = true

			continue
		}

		summary.Moved++

		if n.ID != root.ID {
			e.record(ctx, Outcome{ItemID: n.ID, Name: n.Name, Kind: kindOf(n), Status: StatusMigrated})
		}
	}

	if moveFailed {
		return
	}

	e.record(ctx, Outcome{ItemID: root.ID, Name: root.Name, Kind: string(worklist.KindFolder), Status: StatusMigrated})
}

// collectSubtree walks the folder with an explicit stack (bounded memory,
// no call recursion for pathologically deep trees) and returns every node
// in discovery order: a parent always precedes its descendants.
func (e *Engine) collectSubtree(ctx context.Context, root *drive.File) ([]drive.File, error) {
	var ordered []drive.File

	stack := []drive.File{*root}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ordered = append(ordered, f)

		if !f.IsFolder() {
			continue
		}

		children, err := e.api.ListChildren(ctx, f.ID)
		if err != nil {
			return nil, err
		}

		stack = append(stack, children...)
	}

	return ordered, nil
}

// copyItem establishes an account-owned copy of one node alongside the
// original. Returns the new ID and whether a copy was made.
//
// Items the account already owns are not re-copied — a copy would be
// redundant — but still move into the backup folder with the rest of the
// subtree so the tree stays whole.
//
// Folders cannot be server-side copied; a fresh folder with the same name
// is created under the original's parent instead. Google-native document
// types that refuse a server-side copy fall back to export/import, with
// format conversion delegated to the service.
func (e *Engine) copyItem(ctx context.Context, f *drive.File) (string, bool, error) {
	if f.OwnedByMe {
		e.logger.Debug("already owned, skipping copy", slog.String("item_id", f.ID))
		return "", false, nil
	}

	if f.IsFolder() {
		replica, err := e.api.CreateFolder(ctx, f.Name, firstParent(f))
		if err != nil {
			return "", false, err
		}

		if replica.ID == "" {
			return "", false, errors.New("migrate: folder create returned empty id")
		}

		return replica.ID, true, nil
	}

	copied, err := e.api.CopyFile(ctx, f.ID, "")
	if err != nil {
		if drive.IsNativeDoc(f.MimeType) {
			return e.exportImport(ctx, f)
		}

		return "", false, err
	}

	if copied.ID == "" {
		return "", false, errors.New("migrate: copy returned empty id")
	}

	return copied.ID, true, nil
}

// exportImport re-creates a Google-native document by exporting it to the
// matching Office format and uploading the result as a new file.
func (e *Engine) exportImport(ctx context.Context, f *drive.File) (string, bool, error) {
	exportMime, extension, ok := drive.ExportFormat(f.MimeType)
	if !ok {
		return "", false, fmt.Errorf("migrate: no export format for %s", f.MimeType)
	}

	e.logger.Info("server-side copy refused, falling back to export/import",
		slog.String("item_id", f.ID),
		slog.String("export_mime", exportMime),
	)

	data, err := e.api.Export(ctx, f.ID, exportMime)
	if err != nil {
		return "", false, fmt.Errorf("export: %w", err)
	}

	imported, err := e.api.ImportFile(ctx, f.Name+extension, firstParent(f), exportMime, data)
	if err != nil {
		return "", false, fmt.Errorf("import: %w", err)
	}

	if imported.ID == "" {
		return "", false, errors.New("migrate: import returned empty id")
	}

	return imported.ID, true, nil
}

// moveToBackup relocates the original into the backup folder. Removing the
// old parents and adding the new one happen in the same call, so the item
// never transiently has zero or two parents.
func (e *Engine) moveToBackup(ctx context.Context, f *drive.File) error {
	_, err := e.api.MoveFile(ctx, f.ID, e.backupID, f.Parents)
	return err
}

// record writes an outcome to the journal, logging (not propagating) any
// journal error so bookkeeping problems never abort the batch. Dry runs
// mutate nothing remotely and journal nothing locally.
func (e *Engine) record(ctx context.Context, o Outcome) {
	if e.journal == nil || e.dryRun {
		return
	}

	if err := e.journal.Record(ctx, e.runID, o); err != nil {
		e.logger.Warn("recording outcome failed",
			slog.String("item_id", o.ItemID),
			slog.String("error", err.Error()),
		)
	}
}

// kindOf maps a node to the journal kind string.
func kindOf(f *drive.File) string {
	if f.IsFolder() {
		return string(worklist.KindFolder)
	}

	return string(worklist.KindFile)
}

// firstParent returns the node's first parent ID, or empty when the API
// returned none (items shared without parent visibility).
func firstParent(f *drive.File) string {
	if len(f.Parents) == 0 {
		return ""
	}

	return f.Parents[0]
}

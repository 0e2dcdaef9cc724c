package migrate

import (
	"context"

	"github.com/tonimelisma/drive-migrate/internal/drive"
)

// API is the slice of the Drive client the engine consumes. Defined at the
// consumer per Go convention "accept interfaces, return structs"; tests
// substitute a mock.
type API interface {
	GetFile(ctx context.Context, fileID string) (*drive.File, error)
	ListChildren(ctx context.Context, folderID string) ([]drive.File, error)
	CopyFile(ctx context.Context, fileID, name string) (*drive.File, error)
	MoveFile(ctx context.Context, fileID, newParentID string, oldParentIDs []string) (*drive.File, error)
	CreateFolder(ctx context.Context, name, parentID string) (*drive.File, error)
	FindFolder(ctx context.Context, name, parentID string) (*drive.File, error)
	Export(ctx context.Context, fileID, mimeType string) ([]byte, error)
	ImportFile(ctx context.Context, name, parentID, contentType string, data []byte) (*drive.File, error)
}

var _ API = (*drive.Client)(nil)

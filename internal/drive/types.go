package drive

// Google-native MIME types. Folders are a pseudo-type; the document types
// cannot be copied byte-for-byte and need the export/import path when a
// server-side copy is refused.
const (
	MimeFolder       = "application/vnd.google-apps.folder"
	MimeDocument     = "application/vnd.google-apps.document"
	MimeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimePresentation = "application/vnd.google-apps.presentation"
)

// exportFormats maps each Google-native document type to the Office MIME
// type and file extension used for export/import. Conversion itself happens
// server-side; the client only names the target format.
var exportFormats = map[string]struct {
	MimeType  string
	Extension string
}{
	MimeDocument: {
		MimeType:  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Extension: ".docx",
	},
	MimeSpreadsheet: {
		MimeType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension: ".xlsx",
	},
	MimePresentation: {
		MimeType:  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		Extension: ".pptx",
	},
}

// IsNativeDoc reports whether the MIME type is a Google-native document
// format (Docs, Sheets, Slides).
func IsNativeDoc(mimeType string) bool {
	_, ok := exportFormats[mimeType]
	return ok
}

// ExportFormat returns the export MIME type and file extension for a
// Google-native document type. ok is false for all other MIME types.
func ExportFormat(mimeType string) (exportMime, extension string, ok bool) {
	f, ok := exportFormats[mimeType]
	return f.MimeType, f.Extension, ok
}

// File represents a Drive file or folder, normalized from the API response.
type File struct {
	ID        string
	Name      string
	MimeType  string
	Parents   []string
	OwnedByMe bool
	Trashed   bool
}

// IsFolder reports whether the file is a folder.
func (f *File) IsFolder() bool {
	return f.MimeType == MimeFolder
}

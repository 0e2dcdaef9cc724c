package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// fileFields is the fields projection requested on every metadata call.
// Keeping it fixed means every response normalizes into File the same way.
const fileFields = "id,name,mimeType,parents,ownedByMe,trashed"

// listPageSize is the pageSize for list requests. 1000 is the Drive API maximum.
const listPageSize = 1000

// fileResource mirrors the Drive API file JSON exactly.
// Unexported — callers use File via toFile() normalization.
type fileResource struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	MimeType  string   `json:"mimeType"`
	Parents   []string `json:"parents"`
	OwnedByMe bool     `json:"ownedByMe"`
	Trashed   bool     `json:"trashed"`
}

type fileListResponse struct {
	Files         []fileResource `json:"files"`
	NextPageToken string         `json:"nextPageToken"`
}

func (r *fileResource) toFile() File {
	return File{
		ID:        r.ID,
		Name:      r.Name,
		MimeType:  r.MimeType,
		Parents:   r.Parents,
		OwnedByMe: r.OwnedByMe,
		Trashed:   r.Trashed,
	}
}

// escapeQuery escapes a string literal for interpolation into a Drive
// search query. Backslashes and single quotes are the only special
// characters inside a quoted literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// baseParams returns the query parameters common to all metadata calls.
func baseParams() url.Values {
	v := url.Values{}
	v.Set("fields", fileFields)
	v.Set("supportsAllDrives", "true")

	return v
}

// decodeFile decodes a single file resource from a response body.
func (c *Client) decodeFile(resp *http.Response) (*File, error) {
	defer resp.Body.Close()

	var fr fileResource
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("drive: decoding file response: %w", err)
	}

	f := fr.toFile()

	return &f, nil
}

// GetFile retrieves metadata for a single file or folder by ID.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	c.logger.Debug("getting file", slog.String("file_id", fileID))

	path := fmt.Sprintf("/files/%s?%s", url.PathEscape(fileID), baseParams().Encode())

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	return c.decodeFile(resp)
}

// ListChildren returns all non-trashed children of a folder, following
// continuation tokens until the listing is exhausted.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]File, error) {
	c.logger.Info("listing children", slog.String("folder_id", folderID))

	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))

	files, err := c.listAll(ctx, query)
	if err != nil {
		return nil, err
	}

	c.logger.Info("listed children",
		slog.String("folder_id", folderID),
		slog.Int("total_items", len(files)),
	)

	return files, nil
}

// listAll pages through a Drive search query until no continuation token remains.
func (c *Client) listAll(ctx context.Context, query string) ([]File, error) {
	var files []File

	pageToken := ""
	page := 1

	for {
		pageFiles, next, err := c.listPage(ctx, query, pageToken, page)
		if err != nil {
			return nil, err
		}

		files = append(files, pageFiles...)

		if next == "" {
			return files, nil
		}

		pageToken = next
		page++
	}
}

// listPage fetches a single page of a search query and returns the files
// and the next page token (empty if no more pages).
func (c *Client) listPage(ctx context.Context, query, pageToken string, page int) ([]File, string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("fields", fmt.Sprintf("nextPageToken,files(%s)", fileFields))
	params.Set("pageSize", fmt.Sprint(listPageSize))
	params.Set("supportsAllDrives", "true")
	params.Set("includeItemsFromAllDrives", "true")

	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	resp, err := c.Do(ctx, http.MethodGet, "/files?"+params.Encode(), nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var flr fileListResponse
	if err := json.NewDecoder(resp.Body).Decode(&flr); err != nil {
		return nil, "", fmt.Errorf("drive: decoding list response: %w", err)
	}

	files := make([]File, 0, len(flr.Files))
	for i := range flr.Files {
		files = append(files, flr.Files[i].toFile())
	}

	c.logger.Debug("fetched list page",
		slog.Int("page", page),
		slog.Int("count", len(files)),
	)

	return files, flr.NextPageToken, nil
}

// CopyFile performs a server-side copy of a file. The copy is created in the
// file's current parent and is owned by the invoking account. name may be
// empty to keep the original name.
func (c *Client) CopyFile(ctx context.Context, fileID, name string) (*File, error) {
	c.logger.Info("copying file",
		slog.String("file_id", fileID),
		slog.String("name", name),
	)

	reqBody := map[string]string{}
	if name != "" {
		reqBody["name"] = name
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("drive: marshaling copy request: %w", err)
	}

	path := fmt.Sprintf("/files/%s/copy?%s", url.PathEscape(fileID), baseParams().Encode())

	resp, err := c.Do(ctx, http.MethodPost, path, bodyBytes)
	if err != nil {
		return nil, err
	}

	return c.decodeFile(resp)
}

// MoveFile relocates a file into newParentID by updating its parent
// references. The old parents are removed in the same call as the new
// parent is added, so the file never transiently has zero or two parents.
func (c *Client) MoveFile(ctx context.Context, fileID, newParentID string, oldParentIDs []string) (*File, error) {
	c.logger.Info("moving file",
		slog.String("file_id", fileID),
		slog.String("new_parent_id", newParentID),
	)

	params := baseParams()
	params.Set("addParents", newParentID)

	if len(oldParentIDs) > 0 {
		params.Set("removeParents", strings.Join(oldParentIDs, ","))
	}

	path := fmt.Sprintf("/files/%s?%s", url.PathEscape(fileID), params.Encode())

	// Empty JSON body — the move is expressed entirely in query parameters.
	resp, err := c.Do(ctx, http.MethodPatch, path, []byte("{}"))
	if err != nil {
		return nil, err
	}

	return c.decodeFile(resp)
}

// createFileRequest is the metadata body for folder creation and imports.
type createFileRequest struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

// CreateFolder creates a folder under the given parent. An empty parentID
// creates the folder in the account root.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (*File, error) {
	c.logger.Info("creating folder",
		slog.String("name", name),
		slog.String("parent_id", parentID),
	)

	reqBody := createFileRequest{
		Name:     name,
		MimeType: MimeFolder,
	}
	if parentID != "" {
		reqBody.Parents = []string{parentID}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("drive: marshaling create folder request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, "/files?"+baseParams().Encode(), bodyBytes)
	if err != nil {
		return nil, err
	}

	return c.decodeFile(resp)
}

// FindFolder searches for a non-trashed folder with the given name under
// the given parent ("root" for the account root). Returns (nil, nil) if no
// such folder exists. When several match, the first is returned.
func (c *Client) FindFolder(ctx context.Context, name, parentID string) (*File, error) {
	c.logger.Debug("searching for folder",
		slog.String("name", name),
		slog.String("parent_id", parentID),
	)

	query := fmt.Sprintf("mimeType = '%s' and name = '%s' and '%s' in parents and trashed = false",
		MimeFolder, escapeQuery(name), escapeQuery(parentID))

	files, err := c.listAll(ctx, query)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	return &files[0], nil
}

// Export downloads a Google-native document converted to the given MIME
// type. The conversion happens server-side.
func (c *Client) Export(ctx context.Context, fileID, mimeType string) ([]byte, error) {
	c.logger.Info("exporting file",
		slog.String("file_id", fileID),
		slog.String("mime_type", mimeType),
	)

	params := url.Values{}
	params.Set("mimeType", mimeType)

	path := fmt.Sprintf("/files/%s/export?%s", url.PathEscape(fileID), params.Encode())

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("drive: reading export body: %w", err)
	}

	return data, nil
}

// ImportFile uploads content as a new file under the given parent using a
// multipart/related request (metadata part + media part). Used as the
// import half of the export/import fallback for Google-native documents.
func (c *Client) ImportFile(ctx context.Context, name, parentID, contentType string, data []byte) (*File, error) {
	c.logger.Info("importing file",
		slog.String("name", name),
		slog.String("parent_id", parentID),
		slog.String("content_type", contentType),
		slog.Int("size", len(data)),
	)

	meta := createFileRequest{Name: name}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("drive: marshaling import metadata: %w", err)
	}

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")

	metaPart, err := mw.CreatePart(metaHeader)
	if err != nil {
		return nil, fmt.Errorf("drive: creating metadata part: %w", err)
	}

	if _, err := metaPart.Write(metaBytes); err != nil {
		return nil, fmt.Errorf("drive: writing metadata part: %w", err)
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", contentType)

	mediaPart, err := mw.CreatePart(mediaHeader)
	if err != nil {
		return nil, fmt.Errorf("drive: creating media part: %w", err)
	}

	if _, err := mediaPart.Write(data); err != nil {
		return nil, fmt.Errorf("drive: writing media part: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("drive: finalizing multipart body: %w", err)
	}

	params := url.Values{}
	params.Set("uploadType", "multipart")
	params.Set("fields", fileFields)
	params.Set("supportsAllDrives", "true")

	relatedType := "multipart/related; boundary=" + mw.Boundary()

	resp, err := c.Upload(ctx, "/files?"+params.Encode(), relatedType, buf.Bytes())
	if err != nil {
		return nil, err
	}

	return c.decodeFile(resp)
}

package models

import (
	"strconv"
	"strings"
	"time"
)

// FolderMimeType is the MIME type the worker reports for folders.
const FolderMimeType = "application/vnd.google-apps.folder"

// PlaceholderID marks an entry that was synthesized from a pathname rather
// than read from a listing. The worker cannot resolve it, so it must never be
// sent with a mutation.
const PlaceholderID = "temp"

// EntryKind classifies a DriveFile once, at ingestion.
type EntryKind int

const (
	EntryKindFile EntryKind = iota
	EntryKindFolder
)

func (k EntryKind) String() string {
	if k == EntryKindFolder {
		return "folder"
	}
	return "file"
}

// KindForMimeType returns EntryKindFolder for the folder MIME type and for any
// MIME type mentioning "folder".
func KindForMimeType(mimeType string) EntryKind {
	if mimeType == FolderMimeType || strings.Contains(mimeType, "folder") {
		return EntryKindFolder
	}
	return EntryKindFile
}

// DriveFile is one entry of a folder listing or search result.
type DriveFile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MimeType      string `json:"mimeType"`
	Size          string `json:"size,omitempty"` // decimal byte count; never set on folders
	ModifiedTime  string `json:"modifiedTime,omitempty"`
	CreatedTime   string `json:"createdTime,omitempty"`
	FileExtension string `json:"fileExtension,omitempty"`
	Link          string `json:"link,omitempty"`
	DriveID       string `json:"driveId,omitempty"`
	ThumbnailLink string `json:"thumbnailLink,omitempty"`

	Kind EntryKind `json:"-"`
}

// Normalize sets Kind from the MIME type and drops any size reported for a
// folder. Every file entering the client passes through here.
func (f *DriveFile) Normalize() {
	f.Kind = KindForMimeType(f.MimeType)
	if f.Kind == EntryKindFolder {
		f.Size = ""
	}
}

// IsFolder reports whether the entry is a folder.
func (f DriveFile) IsFolder() bool {
	return f.Kind == EntryKindFolder
}

// Resolved reports whether the entry carries an identifier the worker knows.
func (f DriveFile) Resolved() bool {
	return f.ID != "" && f.ID != PlaceholderID
}

// SizeBytes parses Size. Folders and unparsable sizes report false.
func (f DriveFile) SizeBytes() (int64, bool) {
	if f.IsFolder() || f.Size == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(f.Size, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Modified parses ModifiedTime as RFC 3339.
func (f DriveFile) Modified() (time.Time, bool) {
	return parseTime(f.ModifiedTime)
}

// Created parses CreatedTime as RFC 3339.
func (f DriveFile) Created() (time.Time, bool) {
	return parseTime(f.CreatedTime)
}

// Extension returns the lower-cased extension, preferring the worker's
// fileExtension field over the name.
func (f DriveFile) Extension() string {
	if f.FileExtension != "" {
		return strings.ToLower(strings.TrimPrefix(f.FileExtension, "."))
	}
	if i := strings.LastIndex(f.Name, "."); i >= 0 && i < len(f.Name)-1 {
		return strings.ToLower(f.Name[i+1:])
	}
	return ""
}

// NewPlaceholder builds an unresolved entry for a file addressed directly by
// pathname.
func NewPlaceholder(name, mimeType string) DriveFile {
	f := DriveFile{ID: PlaceholderID, Name: name, MimeType: mimeType}
	f.Normalize()
	return f
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

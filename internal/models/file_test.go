package models

import (
	"encoding/json"
	"testing"
)

func TestKindForMimeType(t *testing.T) {
	tests := []struct {
		mime string
		want EntryKind
	}{
		{FolderMimeType, EntryKindFolder},
		{"application/x-folder", EntryKindFolder},
		{"text/plain", EntryKindFile},
		{"", EntryKindFile},
	}
	for _, tt := range tests {
		if got := KindForMimeType(tt.mime); got != tt.want {
			t.Errorf("KindForMimeType(%q) = %v, want %v", tt.mime, got, tt.want)
		}
	}
}

func TestNormalizeDropsFolderSize(t *testing.T) {
	f := DriveFile{Name: "docs", MimeType: FolderMimeType, Size: "4096"}
	f.Normalize()

	if !f.IsFolder() {
		t.Fatal("IsFolder() = false for folder MIME type")
	}
	if f.Size != "" {
		t.Errorf("Size = %q, want empty for folders", f.Size)
	}
	if _, ok := f.SizeBytes(); ok {
		t.Error("SizeBytes() should report false for folders")
	}
}

func TestSizeBytes(t *testing.T) {
	tests := []struct {
		size   string
		want   int64
		wantOK bool
	}{
		{"1024", 1024, true},
		{"0", 0, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-5", 0, false},
	}
	for _, tt := range tests {
		f := DriveFile{Name: "a", MimeType: "text/plain", Size: tt.size}
		f.Normalize()
		got, ok := f.SizeBytes()
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("SizeBytes(%q) = %d, %v, want %d, %v", tt.size, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestResolvedAndPlaceholder(t *testing.T) {
	p := NewPlaceholder("report.pdf", "application/pdf")
	if p.Resolved() {
		t.Error("placeholder should not be resolved")
	}
	if p.IsFolder() {
		t.Error("placeholder for a PDF should be a file")
	}
	if (DriveFile{}).Resolved() {
		t.Error("empty ID should not be resolved")
	}
	if !(DriveFile{ID: "abc"}).Resolved() {
		t.Error("real ID should be resolved")
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		file DriveFile
		want string
	}{
		{DriveFile{Name: "Report.PDF"}, "pdf"},
		{DriveFile{Name: "archive.tar.gz"}, "gz"},
		{DriveFile{Name: "noext"}, ""},
		{DriveFile{Name: "trailing."}, ""},
		{DriveFile{Name: "x.bin", FileExtension: ".MP4"}, "mp4"},
	}
	for _, tt := range tests {
		if got := tt.file.Extension(); got != tt.want {
			t.Errorf("Extension(%q) = %q, want %q", tt.file.Name, got, tt.want)
		}
	}
}

func TestTimes(t *testing.T) {
	f := DriveFile{ModifiedTime: "2024-03-01T10:20:30.123Z", CreatedTime: "not a time"}

	m, ok := f.Modified()
	if !ok || m.Year() != 2024 || m.Month() != 3 {
		t.Errorf("Modified() = %v, %v", m, ok)
	}
	if _, ok := f.Created(); ok {
		t.Error("Created() should fail on an invalid timestamp")
	}
	if _, ok := (DriveFile{}).Modified(); ok {
		t.Error("Modified() should fail on an empty timestamp")
	}
}

func TestListResponsePage(t *testing.T) {
	body := `{
		"nextPageToken": "T1",
		"curPageIndex": 2,
		"data": {"files": [
			{"id": "1", "name": "docs", "mimeType": "application/vnd.google-apps.folder", "size": "10"},
			{"id": "2", "name": "a.txt", "mimeType": "text/plain", "size": "5"}
		]}
	}`

	var resp ListResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	page := resp.Page()
	if page.NextPageToken != "T1" || page.PageIndex != 2 || !page.HasMore() {
		t.Errorf("page = %+v", page)
	}
	if len(page.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2", len(page.Files))
	}
	if !page.Files[0].IsFolder() || page.Files[0].Size != "" {
		t.Errorf("folder not normalized: %+v", page.Files[0])
	}
	if page.Files[1].IsFolder() {
		t.Errorf("file classified as folder: %+v", page.Files[1])
	}
}

func TestListResponseNullToken(t *testing.T) {
	var resp ListResponse
	if err := json.Unmarshal([]byte(`{"nextPageToken": null, "data": {"files": []}}`), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	page := resp.Page()
	if page.HasMore() {
		t.Error("null token should mean no more pages")
	}
	if page.Files == nil {
		t.Error("Files should be an empty slice, not nil")
	}

	var nilPage *ListingPage
	if nilPage.HasMore() {
		t.Error("nil page should not have more")
	}
}

func TestTokenPtr(t *testing.T) {
	if TokenPtr("") != nil {
		t.Error("TokenPtr(\"\") should be nil")
	}
	if p := TokenPtr("x"); p == nil || *p != "x" {
		t.Errorf("TokenPtr(x) = %v", p)
	}

	b, err := json.Marshal(FolderRequest{Type: "folder", PageToken: TokenPtr("")})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":"folder","password":"","page_token":null,"page_index":0}`
	if string(b) != want {
		t.Errorf("FolderRequest JSON = %s, want %s", b, want)
	}
}

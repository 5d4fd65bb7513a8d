package models

// ListingPage is one page of a folder listing or search.
// An empty NextPageToken means there are no more pages.
type ListingPage struct {
	Files         []DriveFile
	NextPageToken string
	PageIndex     int
}

// HasMore reports whether another page can be requested.
func (p *ListingPage) HasMore() bool {
	return p != nil && p.NextPageToken != ""
}

// ListResponse is the envelope returned by folder and search requests.
type ListResponse struct {
	NextPageToken *string `json:"nextPageToken"`
	CurPageIndex  int     `json:"curPageIndex"`
	Data          struct {
		Files []DriveFile `json:"files"`
	} `json:"data"`
	Error *ResponseError `json:"error,omitempty"`
}

// ResponseError is the in-body error the worker reports with a 200 status.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Page converts the envelope into a ListingPage, normalizing every file.
func (r *ListResponse) Page() *ListingPage {
	page := &ListingPage{
		Files:     make([]DriveFile, 0, len(r.Data.Files)),
		PageIndex: r.CurPageIndex,
	}
	if r.NextPageToken != nil {
		page.NextPageToken = *r.NextPageToken
	}
	for _, f := range r.Data.Files {
		f.Normalize()
		page.Files = append(page.Files, f)
	}
	return page
}

// FolderRequest is the body of POST /{drive}:{path}.
type FolderRequest struct {
	Type      string  `json:"type"`
	Password  string  `json:"password"`
	PageToken *string `json:"page_token"`
	PageIndex int     `json:"page_index"`
}

// SearchRequest is the body of POST /{drive}:search.
type SearchRequest struct {
	Query     string  `json:"q"`
	PageToken *string `json:"page_token"`
	PageIndex int     `json:"page_index"`
}

// RenameRequest is the body of POST /{drive}:rename.
type RenameRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DeleteRequest is the body of POST /{drive}:delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// MutationResponse is the worker's reply to rename and delete.
type MutationResponse struct {
	Success bool   `json:"success"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// TokenPtr returns nil for an empty token so it serializes as JSON null.
func TokenPtr(token string) *string {
	if token == "" {
		return nil
	}
	return &token
}

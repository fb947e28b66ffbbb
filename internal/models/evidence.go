package models

import "time"

// Evidence is an uploaded file backing a reported actual.
type Evidence struct {
	ID                string         `db:"id" json:"id"`
	ActualID          string         `db:"actual_id" json:"actual_id"`
	FileName          string         `db:"file_name" json:"file_name"`
	StoredPath        string         `db:"stored_path" json:"-"`
	MimeType          string         `db:"mime_type" json:"mime_type"`
	SizeBytes         int64          `db:"size_bytes" json:"size_bytes"`
	OCRText           *string        `db:"ocr_text" json:"-"`
	Verification      AIVerification `db:"verification" json:"verification"`
	DiscrepanciesJSON []byte         `db:"discrepancies" json:"-"`
	UploadedBy        string         `db:"uploaded_by" json:"uploaded_by"`
	IndexedAt         *time.Time     `db:"indexed_at" json:"indexed_at,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

// IndexRunStatus reports the state of the bulk document indexing job.
type IndexRunStatus struct {
	Running    bool       `json:"running"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Indexed    int        `json:"indexed"`
	Failed     int        `json:"failed"`
	LastError  string     `json:"last_error,omitempty"`
}

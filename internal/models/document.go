// Package models defines core data structures for documents, extraction attempts, and search results.
package models

import (
	"strings"
	"time"
)

// ExtractionMethod identifies which extraction strategy produced a document's text.
type ExtractionMethod string

const (
	MethodNone   ExtractionMethod = ""
	MethodDirect ExtractionMethod = "DIRECT"
	MethodOCRA   ExtractionMethod = "OCR_ENGINE_A"
	MethodOCRB   ExtractionMethod = "OCR_ENGINE_B"
	MethodFailed ExtractionMethod = "FAILED"
)

// Status is the lifecycle state of a document record.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusExtracted        Status = "EXTRACTED"
	StatusExtractionFailed Status = "EXTRACTION_FAILED"
)

// Document is the authoritative record for one ingested file.
// Version is bumped on every content mutation and is owned by the corpus index.
type Document struct {
	ID               string           `json:"id" db:"id"`
	Title            string           `json:"title" db:"title"`
	Folder           string           `json:"folder" db:"folder"`
	Tags             []string         `json:"tags,omitempty" db:"tags"`
	SourceURI        string           `json:"source_uri" db:"source_uri"`
	MimeHint         string           `json:"mime_hint" db:"mime_hint"`
	RawSizeBytes     int64            `json:"raw_size_bytes" db:"raw_size_bytes"`
	ExtractedText    string           `json:"extracted_text" db:"extracted_text"`
	ExtractionMethod ExtractionMethod `json:"extraction_method" db:"extraction_method"`
	ExtractionError  string           `json:"extraction_error,omitempty" db:"extraction_error"`
	Confidence       float64          `json:"confidence" db:"confidence"`
	Status           Status           `json:"status" db:"status"`
	Version          uint64           `json:"version" db:"version"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.Tags != nil {
		c.Tags = append([]string(nil), d.Tags...)
	}
	return &c
}

// DocumentInput is the payload submitted for ingestion.
type DocumentInput struct {
	ID        string   `json:"id,omitempty"`
	Title     string   `json:"title,omitempty"`
	Folder    string   `json:"folder,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	SourceURI string   `json:"source_uri,omitempty"`
	MimeHint  string   `json:"mime_hint,omitempty"`
	Content   []byte   `json:"-"`
}

// NormalizeFolder cleans a folder path so "/Sales/", "sales" and "sales/" compare equal.
// The empty string is the corpus root.
func NormalizeFolder(folder string) string {
	f := strings.ToLower(strings.TrimSpace(folder))
	f = strings.ReplaceAll(f, "\\", "/")
	f = strings.Trim(f, "/")
	for strings.Contains(f, "//") {
		f = strings.ReplaceAll(f, "//", "/")
	}
	return f
}

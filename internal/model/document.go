// Package model provides the persistent and wire-level data models.
package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// Document lifecycle statuses. Transitions are monotonic:
// uploaded -> processing -> completed or failed.
const (
	DocumentStatusUploaded   = "uploaded"
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"
)

// PageUnknown is the page value recorded when a chunk's page cannot be
// determined. It propagates verbatim into citations.
const PageUnknown = "N/A"

// Document tracks one ingested file per organization. Re-ingesting the same
// filename for the same organization reuses the row instead of creating a
// duplicate.
type Document struct {
	ID              string         `json:"id" gorm:"primaryKey;type:varchar(26)"`
	OrgID           string         `json:"org_id" gorm:"type:varchar(26);not null;uniqueIndex:uk_org_filename;index:idx_doc_org"`
	Filename        string         `json:"filename" gorm:"type:varchar(255);not null;uniqueIndex:uk_org_filename"`
	OriginalName    string         `json:"original_name,omitempty" gorm:"type:varchar(255)"`
	SizeBytes       int64          `json:"size_bytes,omitempty"`
	MimeType        string         `json:"mime_type,omitempty" gorm:"type:varchar(127)"`
	Status          string         `json:"status" gorm:"type:varchar(16);not null;default:'uploaded';index:idx_doc_status"`
	ChunksProcessed int            `json:"chunks_processed" gorm:"default:0"`
	ErrorMessage    string         `json:"error_message,omitempty" gorm:"type:text"`
	StoragePath     string         `json:"storage_path,omitempty" gorm:"type:varchar(512)"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (Document) TableName() string {
	return "documents"
}

// BeforeCreate assigns a ULID when the caller did not set one.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = NewID()
	}
	return nil
}

// DocumentList contains a page of documents and the total count.
type DocumentList struct {
	TotalCount int64       `json:"totalCount"`
	Items      []*Document `json:"items"`
}

// NewID returns a new lexicographically sortable unique ID.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

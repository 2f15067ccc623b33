package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/synaptiq/knowledged/internal/model"
)

type documents struct {
	db *gorm.DB
}

func newDocuments(db *gorm.DB) *documents {
	return &documents{db}
}

// Create creates a new document record.
func (d *documents) Create(ctx context.Context, doc *model.Document) error {
	return d.db.WithContext(ctx).Create(doc).Error
}

// Update persists changes to an existing document record.
func (d *documents) Update(ctx context.Context, doc *model.Document) error {
	return d.db.WithContext(ctx).Save(doc).Error
}

// Delete removes a document record. The delete is a hard delete: the vector
// chunks and the stored file are gone by the time the row goes, and a
// tombstone would hold the (org_id, filename) unique index against a later
// re-upload of the same filename.
func (d *documents) Delete(ctx context.Context, orgID, id string) error {
	result := d.db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id).Delete(&model.Document{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Get retrieves a document by ID within an organization.
func (d *documents) Get(ctx context.Context, orgID, id string) (*model.Document, error) {
	var doc model.Document
	if err := d.db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetByFilename retrieves a document by filename within an organization.
// Returns (nil, nil) when no document with that filename exists.
func (d *documents) GetByFilename(ctx context.Context, orgID, filename string) (*model.Document, error) {
	var doc model.Document
	err := d.db.WithContext(ctx).Where("org_id = ? AND filename = ?", orgID, filename).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// List lists an organization's documents with pagination, newest first.
func (d *documents) List(ctx context.Context, orgID string, offset, limit int) (int64, []*model.Document, error) {
	var count int64
	var docs []*model.Document

	scope := d.db.WithContext(ctx).Model(&model.Document{}).Where("org_id = ?", orgID)
	if err := scope.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if err := scope.Order("created_at DESC").Offset(offset).Limit(limit).Find(&docs).Error; err != nil {
		return 0, nil, err
	}
	return count, docs, nil
}

// CountByStatus counts an organization's documents in the given status.
// An empty status counts all documents.
func (d *documents) CountByStatus(ctx context.Context, orgID, status string) (int64, error) {
	var count int64
	scope := d.db.WithContext(ctx).Model(&model.Document{}).Where("org_id = ?", orgID)
	if status != "" {
		scope = scope.Where("status = ?", status)
	}
	if err := scope.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SumChunks totals chunks_processed over an organization's documents.
func (d *documents) SumChunks(ctx context.Context, orgID string) (int64, error) {
	var sum int64
	err := d.db.WithContext(ctx).Model(&model.Document{}).
		Where("org_id = ?", orgID).
		Select("COALESCE(SUM(chunks_processed), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum, nil
}

package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/synaptiq/knowledged/internal/model"
)

type orgs struct {
	db *gorm.DB
}

func newOrgs(db *gorm.DB) *orgs {
	return &orgs{db}
}

// Create creates a new organization.
func (o *orgs) Create(ctx context.Context, org *model.Org) error {
	return o.db.WithContext(ctx).Create(org).Error
}

// Update persists changes to an existing organization.
func (o *orgs) Update(ctx context.Context, org *model.Org) error {
	return o.db.WithContext(ctx).Save(org).Error
}

// GetByURL retrieves an organization by its URL slug.
func (o *orgs) GetByURL(ctx context.Context, url string) (*model.Org, error) {
	var org model.Org
	if err := o.db.WithContext(ctx).Where("url = ?", url).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

// List lists organizations with pagination.
func (o *orgs) List(ctx context.Context, offset, limit int) (int64, []*model.Org, error) {
	var count int64
	var items []*model.Org

	if err := o.db.WithContext(ctx).Model(&model.Org{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if err := o.db.WithContext(ctx).Order("created_at ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return count, items, nil
}

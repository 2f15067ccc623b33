package model

import (
	"time"

	"gorm.io/gorm"
)

// Org is a tenant. The URL slug scopes every retrieval and ingest operation
// and is stored as flat metadata on each vector chunk.
type Org struct {
	ID                string         `json:"id" gorm:"primaryKey;type:varchar(26)"`
	URL               string         `json:"url" gorm:"type:varchar(128);not null;uniqueIndex:uk_org_url"`
	DisplayName       string         `json:"display_name" gorm:"type:varchar(255);not null"`
	Industry          string         `json:"industry,omitempty" gorm:"type:varchar(255)"`
	CustomerSegments  string         `json:"customer_segments,omitempty" gorm:"type:text"`
	LLMCompanyContext string         `json:"llm_company_context,omitempty" gorm:"type:text"`
	IconURL           string         `json:"icon_url,omitempty" gorm:"type:varchar(512)"`
	CreatedAt         time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the table name for GORM.
func (Org) TableName() string {
	return "orgs"
}

// BeforeCreate assigns a ULID when the caller did not set one.
func (o *Org) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = NewID()
	}
	return nil
}

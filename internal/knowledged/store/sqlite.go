package store

import (
	"gorm.io/gorm"

	"github.com/synaptiq/knowledged/internal/model"
	"github.com/synaptiq/knowledged/pkg/component/sqlite"
)

// datastore implements the Factory interface over a GORM database.
type datastore struct {
	db     *gorm.DB
	client *sqlite.Client
}

// NewFactory builds a metadata store factory from the SQLite client and
// migrates the schema.
func NewFactory(client *sqlite.Client) (Factory, error) {
	ds := &datastore{db: client.DB(), client: client}
	if err := ds.db.AutoMigrate(&model.Org{}, &model.Document{}); err != nil {
		return nil, err
	}
	return ds, nil
}

// NewFactoryWithDB builds a factory from an existing GORM database. Used by
// tests that open their own in-memory database.
func NewFactoryWithDB(db *gorm.DB) (Factory, error) {
	ds := &datastore{db: db}
	if err := ds.db.AutoMigrate(&model.Org{}, &model.Document{}); err != nil {
		return nil, err
	}
	return ds, nil
}

// Documents returns the document store.
func (ds *datastore) Documents() DocumentStore {
	return newDocuments(ds.db)
}

// Orgs returns the organization store.
func (ds *datastore) Orgs() OrgStore {
	return newOrgs(ds.db)
}

// Close closes the underlying connection.
func (ds *datastore) Close() error {
	if ds.client != nil {
		return ds.client.Close()
	}
	return nil
}

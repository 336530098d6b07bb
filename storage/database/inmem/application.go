package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/application"
)

type applicationRepository struct {
	db *DB
}

func NewApplicationRepository(db *DB) application.Repository {
	return &applicationRepository{db: db}
}

func (t *tables) applicationDocuments(appID string) []application.Document {
	docs := make([]application.Document, 0)
	for _, doc := range t.documents {
		if doc.ApplicationID == appID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) })
	return docs
}

func (repo *applicationRepository) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	app.Documents = nil
	err := repo.db.write(func(t *tables) error {
		for _, other := range t.applications {
			if other.ReferenceNumber == app.ReferenceNumber {
				return errors.New("duplicate reference number")
			}
		}
		t.applications[app.ID] = app
		return nil
	})
	app.Documents = []application.Document{}
	return app, err
}

func (repo *applicationRepository) UpdateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	docs := app.Documents
	app.Documents = nil
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.applications[app.ID]; !ok {
			return application.ErrNotFound
		}
		t.applications[app.ID] = app
		return nil
	})
	app.Documents = docs
	return app, err
}

func (repo *applicationRepository) find(match func(app application.Application) bool) (application.Application, error) {
	var (
		found application.Application
		ok    bool
	)
	repo.db.read(func(t *tables) {
		for _, app := range t.applications {
			if match(app) {
				app.Documents = t.applicationDocuments(app.ID)
				found, ok = app, true
				return
			}
		}
	})
	if !ok {
		return application.Application{}, application.ErrNotFound
	}
	return found, nil
}

func (repo *applicationRepository) GetApplication(ctx context.Context, id string) (application.Application, error) {
	return repo.find(func(app application.Application) bool { return app.ID == id })
}

func (repo *applicationRepository) GetApplicationByReference(ctx context.Context, ref string) (application.Application, error) {
	return repo.find(func(app application.Application) bool { return app.ReferenceNumber == ref })
}

func (repo *applicationRepository) GetLinkedApplication(ctx context.Context, email string) (application.Application, error) {
	var (
		found application.Application
		ok    bool
	)
	repo.db.read(func(t *tables) {
		for _, app := range t.applications {
			if app.Email != email || app.Status != application.StatusApproved || !app.HasLMSAccount() {
				continue
			}
			if !ok || app.CreatedAt.After(found.CreatedAt) {
				found, ok = app, true
			}
		}
	})
	if !ok {
		return application.Application{}, application.ErrNotFound
	}
	return found, nil
}

func applicationField(app application.Application, col string) interface{} {
	switch col {
	case "reference_number":
		return app.ReferenceNumber
	case "last_name":
		return app.LastName
	case "email":
		return app.Email
	case "status":
		return app.Status
	case "created_at":
		return app.CreatedAt
	}
	return nil
}

func (repo *applicationRepository) QueryApplications(ctx context.Context, filter application.QueryFilter, pq core.PageQuery) (core.Page[application.Application], error) {
	var total int
	rows := make([]application.Application, 0)
	repo.db.read(func(t *tables) {
		for _, app := range t.applications {
			if filter.Status != "" && app.Status != filter.Status {
				continue
			}
			if filter.ProgramID != "" && (app.ProgramID == nil || *app.ProgramID != filter.ProgramID) {
				continue
			}
			total++
			if matchesAny(pq.Search, app.ReferenceNumber, app.FirstName, app.LastName, app.Email) {
				app.Documents = t.applicationDocuments(app.ID)
				rows = append(rows, app)
			}
		}
	})
	sortRows(rows, pq.Orderings, applicationField)
	return page(total, rows, pq), nil
}

func (repo *applicationRepository) CountApplications(ctx context.Context, filter application.CountFilter) (int, error) {
	var count int
	repo.db.read(func(t *tables) {
		for _, app := range t.applications {
			if filter.Status != "" && app.Status != filter.Status {
				continue
			}
			if !filter.CreatedAfter.IsZero() && app.CreatedAt.Before(filter.CreatedAfter) {
				continue
			}
			count++
		}
	})
	return count, nil
}

func (repo *applicationRepository) AddDocument(ctx context.Context, doc application.Document) (application.Document, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.applications[doc.ApplicationID]; !ok {
			return application.ErrNotFound
		}
		t.documents[doc.ID] = doc
		return nil
	})
	return doc, err
}

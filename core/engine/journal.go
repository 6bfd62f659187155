package engine

import (
	"fmt"

	"github.com/AvaProtocol/sponsored-bundle/model"
	"github.com/AvaProtocol/sponsored-bundle/storage"
	"github.com/AvaProtocol/sponsored-bundle/storage/schema"
)

// Journal keeps the attempts of one bundle for the lifetime of the run.
type Journal struct {
	db         storage.Storage
	bundleHash string
}

func NewJournal(db storage.Storage, bundleHash string) *Journal {
	return &Journal{db: db, bundleHash: bundleHash}
}

// Record stores a new attempt.
func (j *Journal) Record(a *model.Attempt) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid attempt: %w", err)
	}
	return j.save(a)
}

// Resolve updates a recorded attempt with its resolution or error.
func (j *Journal) Resolve(a *model.Attempt, resolution string, cause error) error {
	a.Resolution = resolution
	if cause != nil {
		a.Error = cause.Error()
	}
	return j.save(a)
}

func (j *Journal) save(a *model.Attempt) error {
	data, err := a.ToJSON()
	if err != nil {
		return err
	}
	return j.db.Set(schema.AttemptStorageKey(j.bundleHash, a.ID), data)
}

// Attempts lists recorded attempts in the order they were made.
func (j *Journal) Attempts() ([]*model.Attempt, error) {
	items, err := j.db.GetByPrefix(schema.AttemptStoragePrefix(j.bundleHash))
	if err != nil {
		return nil, err
	}

	attempts := make([]*model.Attempt, 0, len(items))
	for _, item := range items {
		a := &model.Attempt{}
		if err := a.FromStorageData(item.Value); err != nil {
			return nil, fmt.Errorf("corrupted attempt %s: %w", item.Key, err)
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

// Count is the number of broadcasts recorded so far.
func (j *Journal) Count() (int, error) {
	n, err := j.db.CountKeysByPrefix(schema.AttemptStoragePrefix(j.bundleHash))
	return int(n), err
}

package storage

import (
	"errors"

	badger "github.com/dgraph-io/badger/v4"
)

var ErrEmptyPrefix = errors.New("prefix must not be empty")

// Storage is the attempt journal's view of the key value store.
type Storage interface {
	Close() error

	Set(key, value []byte) error
	GetByPrefix(prefix []byte) ([]*KeyValueItem, error)
	// CountKeysByPrefix walks keys only, values are never loaded
	CountKeysByPrefix(prefix []byte) (int64, error)
}

type KeyValueItem struct {
	Key   []byte
	Value []byte
}

type BadgerStorage struct {
	db *badger.DB
}

// NewInMemory opens a badger store that lives only as long as the process.
func NewInMemory() (*BadgerStorage, error) {
	// badger logs its own compaction chatter at info level
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStorage{db: db}, nil
}

func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

func (s *BadgerStorage) Set(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// GetByPrefix returns copies of every item under prefix, in key order.
func (s *BadgerStorage) GetByPrefix(prefix []byte) ([]*KeyValueItem, error) {
	if len(prefix) == 0 {
		return nil, ErrEmptyPrefix
	}

	var items []*KeyValueItem
	err := s.scan(prefix, true, func(item *badger.Item) error {
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		items = append(items, &KeyValueItem{Key: item.KeyCopy(nil), Value: value})
		return nil
	})
	return items, err
}

func (s *BadgerStorage) CountKeysByPrefix(prefix []byte) (int64, error) {
	if len(prefix) == 0 {
		return 0, ErrEmptyPrefix
	}

	var total int64
	err := s.scan(prefix, false, func(*badger.Item) error {
		total++
		return nil
	})
	return total, err
}

func (s *BadgerStorage) scan(prefix []byte, withValues bool, fn func(*badger.Item) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = withValues

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := fn(it.Item()); err != nil {
				return err
			}
		}
		return nil
	})
}

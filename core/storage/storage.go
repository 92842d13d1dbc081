package storage

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// StateBackend abstracts the persistent key-value store for vault state.
type StateBackend interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	// WriteBatch applies every write atomically: all of them land or none do.
	WriteBatch(writes map[string][]byte) error
	// Iterate visits keys with the given prefix in ascending key order.
	Iterate(prefix string, fn func(key string, value []byte) error) error
	Close() error
}

// Storage is a LevelDB-backed StateBackend. Values are sealed with the
// configured Cipher when one is set.
type Storage struct {
	db     *leveldb.DB
	cipher *Cipher
}

// Option configures a Storage.
type Option func(*Storage)

// WithCipher encrypts every value at rest.
func WithCipher(c *Cipher) Option {
	return func(s *Storage) { s.cipher = c }
}

// NewStorage opens (or creates) a LevelDB database at path.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return newStorage(db, opts), nil
}

// NewMemoryStorage returns a Storage over an in-memory LevelDB, used by tests
// and by `medvaultd quote` style one-shot commands.
func NewMemoryStorage(opts ...Option) (*Storage, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return newStorage(db, opts), nil
}

func newStorage(db *leveldb.DB, opts []Option) *Storage {
	s := &Storage{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves a value by key from LevelDB.
func (s *Storage) Get(key string) ([]byte, error) {
	raw, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.open(raw)
}

// Put stores a key-value pair in LevelDB.
func (s *Storage) Put(key string, value []byte) error {
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(key), sealed, nil)
}

func (s *Storage) WriteBatch(writes map[string][]byte) error {
	if len(writes) == 0 {
		return nil
	}
	batch := new(leveldb.Batch)
	for k, v := range writes {
		sealed, err := s.seal(v)
		if err != nil {
			return err
		}
		batch.Put([]byte(k), sealed)
	}
	return s.db.Write(batch, &opt.WriteOptions{Sync: true})
}

func (s *Storage) Iterate(prefix string, fn func(key string, value []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	for iter.Next() {
		value, err := s.open(iter.Value())
		if err != nil {
			return err
		}
		if err := fn(string(iter.Key()), value); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Count returns the number of keys under prefix.
func (s *Storage) Count(prefix string) (int, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	n := 0
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Empty reports whether the database holds no keys at all.
func (s *Storage) Empty() (bool, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	if iter.Next() {
		return false, nil
	}
	return true, iter.Error()
}

func (s *Storage) seal(value []byte) ([]byte, error) {
	if s.cipher == nil {
		return value, nil
	}
	return s.cipher.Encrypt(value)
}

func (s *Storage) open(raw []byte) ([]byte, error) {
	if s.cipher == nil {
		// LevelDB reuses its buffers between iterations.
		return append([]byte(nil), raw...), nil
	}
	return s.cipher.Decrypt(raw)
}

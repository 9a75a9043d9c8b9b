package visitors

import (
	"context"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	lverrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBDayStore persists gate keys in a local LevelDB directory.
type LevelDBDayStore struct {
	db        *leveldb.DB
	writeOpts *opt.WriteOptions
}

// OpenLevelDBDayStore opens (or creates) the store at dir, recovering a
// corrupted database when possible.
func OpenLevelDBDayStore(dir string) (*LevelDBDayStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if lverrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, err
	}
	return &LevelDBDayStore{db: db, writeOpts: &opt.WriteOptions{Sync: false}}, nil
}

func (l *LevelDBDayStore) Get(_ context.Context, key string) (string, bool, error) {
	v, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

func (l *LevelDBDayStore) Set(_ context.Context, key, value string) error {
	return l.db.Put([]byte(key), []byte(value), l.writeOpts)
}

func (l *LevelDBDayStore) Prune(ctx context.Context, keep string) (int, error) {
	iter := l.db.NewIterator(util.BytesPrefix([]byte(GateKeyPrefix)), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if string(iter.Value()) != keep {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	if err := l.db.Write(batch, l.writeOpts); err != nil {
		return 0, err
	}
	return batch.Len(), nil
}

// Close releases the database files.
func (l *LevelDBDayStore) Close() error {
	return l.db.Close()
}

package service

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const badgerKeyPrefix = "trigram/"

// BadgerStoreConfig holds configuration for a BadgerDB-backed index store
type BadgerStoreConfig struct {
	Path       string // Database directory; ignored when InMemory is true
	InMemory   bool   // Keep everything in RAM (tests)
	SyncWrites bool   // fsync every write
}

// BadgerIndexStore keeps encoded indexes in an embedded BadgerDB
type BadgerIndexStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// badgerLogger adapts zap to BadgerDB's Logger interface
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// NewBadgerIndexStore opens (creating if needed) a BadgerDB index store
func NewBadgerIndexStore(cfg BadgerStoreConfig, logger *zap.Logger) (*BadgerIndexStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent index store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	opts = opts.WithLogger(&badgerLogger{sugar: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	logger.Info("Opened badger index store",
		zap.String("path", cfg.Path),
		zap.Bool("in_memory", cfg.InMemory))

	return &BadgerIndexStore{db: db, logger: logger}, nil
}

func (s *BadgerIndexStore) Get(key string) ([]byte, error) {
	var blob []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (s *BadgerIndexStore) Put(key string, blob []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+key), blob)
	})
}

func (s *BadgerIndexStore) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerKeyPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	s.logger.Info("Deleted trigram index", zap.String("key", key))
	return nil
}

func (s *BadgerIndexStore) Name() string {
	return "badger"
}

// Close releases the database
func (s *BadgerIndexStore) Close() error {
	return s.db.Close()
}

package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/logger"
)

// OpenBadger opens an embedded badger database at path, or an in-memory one.
func OpenBadger(path string, inMemory bool) (*badger.DB, error) {
	if !inMemory && path == "" {
		return nil, errors.New("badger: path is required unless running in memory")
	}
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{})
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{})
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return db, nil
}

// badgerLogger routes badger's internal logging into pkg/logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{})   { logger.Errorf("badger: "+trim(f), v...) }
func (badgerLogger) Warningf(f string, v ...interface{}) { logger.Warnf("badger: "+trim(f), v...) }
func (badgerLogger) Infof(f string, v ...interface{})    { logger.Debugf("badger: "+trim(f), v...) }
func (badgerLogger) Debugf(f string, v ...interface{})   { logger.Debugf("badger: "+trim(f), v...) }

func trim(f string) string { return strings.TrimRight(f, "\n") }

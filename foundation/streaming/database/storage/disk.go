// Package storage implements the serializers used by the database package
// for persisting ledger snapshots.
package storage

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/streampay/streampay/foundation/streaming/database"
)

// Disk represents the serialization implementation for reading and storing
// ledger snapshots in a single file on disk. This implements the
// database.Serializer interface.
type Disk struct {
	dbPath string
}

// NewDisk constructs a Disk value for use.
func NewDisk(dbPath string) (*Disk, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	return &Disk{dbPath: dbPath}, nil
}

// Close in this implementation has nothing to do since the snapshot file is
// opened and closed on each write.
func (d *Disk) Close() error {
	return nil
}

// Write replaces the snapshot on disk with the specified state.
func (d *Disk) Write(snapshot database.Snapshot) error {

	// Marshal the snapshot for writing to disk in a more human readable format.
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	// Write to a scratch file first so a crash mid-write can't lose the
	// previous snapshot.
	tmp := d.dbPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmp, d.dbPath)
}

// Read returns the snapshot stored on disk.
func (d *Disk) Read() (database.Snapshot, error) {
	f, err := os.OpenFile(d.dbPath, os.O_RDONLY, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return database.Snapshot{}, database.ErrNoSnapshot
		}
		return database.Snapshot{}, err
	}
	defer f.Close()

	var snapshot database.Snapshot
	if err := json.NewDecoder(f).Decode(&snapshot); err != nil {
		return database.Snapshot{}, err
	}

	return snapshot, nil
}

// Reset will clear out the snapshot on disk.
func (d *Disk) Reset() error {
	if err := os.Remove(d.dbPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

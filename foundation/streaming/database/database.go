// Package database manages the registry of payment streams, their
// compounding extensions, and the protocol wide state. It is the single
// owner of every record; all mutation happens through this package.
package database

import (
	"errors"
	"fmt"
	"sync"

	"github.com/streampay/streampay/foundation/money"
	"github.com/streampay/streampay/foundation/streaming/genesis"
)

// Serializer interface represents the behavior required to be implemented
// by any package providing support for persisting ledger snapshots.
type Serializer interface {
	Write(snapshot Snapshot) error
	Read() (Snapshot, error)
	Reset() error
	Close() error
}

// Snapshot represents the full registry state written after every mutation
// and reloaded at startup.
type Snapshot struct {
	NextStreamID uint64                 `json:"next_stream_id"`
	Streams      []Stream               `json:"streams"`
	Extensions   []CompoundingExtension `json:"extensions"`
	Fee          money.Fixed            `json:"fee"`
	Allowed      []AssetID              `json:"allowed"`
	Earnings     map[AssetID]uint64     `json:"earnings"`
}

// =============================================================================

// Database manages data related to streams and the protocol state. All
// access is serialized behind the mutex so each operation runs to
// completion against a consistent registry.
type Database struct {
	mu sync.RWMutex

	genesis      genesis.Genesis
	streams      map[uint64]Stream
	extensions   map[uint64]CompoundingExtension
	nextStreamID uint64
	fee          money.Fixed
	allowed      map[AssetID]bool
	earnings     map[AssetID]uint64

	serializer Serializer
}

// New constructs a new database, applies the genesis protocol parameters,
// and reloads any existing snapshot from the serializer.
func New(gen genesis.Genesis, serializer Serializer) (*Database, error) {
	db := Database{
		genesis:      gen,
		streams:      make(map[uint64]Stream),
		extensions:   make(map[uint64]CompoundingExtension),
		nextStreamID: 1,
		earnings:     make(map[AssetID]uint64),
		serializer:   serializer,
	}

	if err := db.applyGenesis(); err != nil {
		return nil, err
	}

	// A snapshot on disk supersedes genesis. Replaying operations is never
	// needed since snapshots carry the full registry state.
	snapshot, err := serializer.Read()
	switch {
	case err == nil:
		db.applySnapshot(snapshot)
	case errors.Is(err, ErrNoSnapshot):
	default:
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	return &db, nil
}

// Close closes the underlying snapshot storage.
func (db *Database) Close() {
	db.serializer.Close()
}

// Reset re-initializes the database back to the genesis state.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.serializer.Reset(); err != nil {
		return err
	}

	db.streams = make(map[uint64]Stream)
	db.extensions = make(map[uint64]CompoundingExtension)
	db.nextStreamID = 1
	db.earnings = make(map[AssetID]uint64)

	return db.applyGenesis()
}

// applyGenesis loads the protocol parameters from the genesis file.
func (db *Database) applyGenesis() error {
	if db.genesis.Fee.Cmp(money.One()) > 0 {
		return fmt.Errorf("genesis fee %s: %w", db.genesis.Fee, ErrInvalidFee)
	}
	db.fee = db.genesis.Fee

	db.allowed = make(map[AssetID]bool)
	for _, assetStr := range db.genesis.CompoundingAssets {
		assetID, err := ToAssetID(assetStr)
		if err != nil {
			return fmt.Errorf("genesis asset %q: %w", assetStr, err)
		}
		db.allowed[assetID] = true
	}

	return nil
}

// applySnapshot replaces the registry state with a stored snapshot.
func (db *Database) applySnapshot(snapshot Snapshot) {
	db.nextStreamID = snapshot.NextStreamID
	db.fee = snapshot.Fee

	db.streams = make(map[uint64]Stream)
	for _, stream := range snapshot.Streams {
		db.streams[stream.ID] = stream
	}

	db.extensions = make(map[uint64]CompoundingExtension)
	for _, ext := range snapshot.Extensions {
		db.extensions[ext.StreamID] = ext
	}

	db.allowed = make(map[AssetID]bool)
	for _, assetID := range snapshot.Allowed {
		db.allowed[assetID] = true
	}

	db.earnings = make(map[AssetID]uint64)
	for assetID, amount := range snapshot.Earnings {
		db.earnings[assetID] = amount
	}
}

// persist writes the current registry state through the serializer. The
// caller must hold the write lock.
func (db *Database) persist() error {
	snapshot := Snapshot{
		NextStreamID: db.nextStreamID,
		Fee:          db.fee,
		Earnings:     make(map[AssetID]uint64),
	}

	for _, stream := range db.streams {
		snapshot.Streams = append(snapshot.Streams, stream)
	}
	for _, ext := range db.extensions {
		snapshot.Extensions = append(snapshot.Extensions, ext)
	}
	for assetID := range db.allowed {
		snapshot.Allowed = append(snapshot.Allowed, assetID)
	}
	for assetID, amount := range db.earnings {
		snapshot.Earnings[assetID] = amount
	}

	return db.serializer.Write(snapshot)
}

// =============================================================================

// CreateStream allocates the next stream identifier and stores the record.
func (db *Database) CreateStream(stream Stream) (Stream, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	stream.ID = db.nextStreamID
	db.nextStreamID++
	db.streams[stream.ID] = stream

	if err := db.persist(); err != nil {
		delete(db.streams, stream.ID)
		db.nextStreamID--
		return Stream{}, err
	}

	return stream, nil
}

// CreateCompoundingStream stores a stream together with its compounding
// extension in one atomic step. The asset must be on the allow list.
func (db *Database) CreateCompoundingStream(stream Stream, ext CompoundingExtension) (Stream, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.allowed[stream.Asset] {
		return Stream{}, fmt.Errorf("asset %q: %w", stream.Asset, ErrAssetNotAllowed)
	}

	stream.ID = db.nextStreamID
	ext.StreamID = stream.ID
	db.nextStreamID++
	db.streams[stream.ID] = stream
	db.extensions[stream.ID] = ext

	if err := db.persist(); err != nil {
		delete(db.streams, stream.ID)
		delete(db.extensions, stream.ID)
		db.nextStreamID--
		return Stream{}, err
	}

	return stream, nil
}

// GetStream returns the stream for the specified identifier.
func (db *Database) GetStream(streamID uint64) (Stream, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	stream, exists := db.streams[streamID]
	if !exists {
		return Stream{}, fmt.Errorf("stream %d: %w", streamID, ErrStreamNotFound)
	}

	return stream, nil
}

// GetExtension returns the compounding extension for the specified stream.
func (db *Database) GetExtension(streamID uint64) (CompoundingExtension, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	ext, exists := db.extensions[streamID]
	if !exists {
		return CompoundingExtension{}, fmt.Errorf("stream %d: %w", streamID, ErrExtensionNotFound)
	}

	return ext, nil
}

// IsCompounding reports whether the stream carries a compounding extension.
func (db *Database) IsCompounding(streamID uint64) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.extensions[streamID]
	return exists
}

// CopyStreams makes a copy of the current streams in the database.
func (db *Database) CopyStreams() map[uint64]Stream {
	db.mu.RLock()
	defer db.mu.RUnlock()

	streams := make(map[uint64]Stream)
	for streamID, stream := range db.streams {
		streams[streamID] = stream
	}
	return streams
}

// ApplyWithdrawal decreases the stream's remaining balance by the specified
// amount. When the balance reaches zero the stream and any extension are
// deleted. The updated record is returned for event reporting.
func (db *Database) ApplyWithdrawal(streamID uint64, amount uint64) (Stream, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	stream, exists := db.streams[streamID]
	if !exists {
		return Stream{}, fmt.Errorf("stream %d: %w", streamID, ErrStreamNotFound)
	}

	remaining, err := money.SafeSub(stream.RemainingBalance, amount)
	if err != nil {
		return Stream{}, fmt.Errorf("stream %d balance: %w", streamID, err)
	}
	stream.RemainingBalance = remaining

	if remaining == 0 {
		delete(db.streams, streamID)
		delete(db.extensions, streamID)
	} else {
		db.streams[streamID] = stream
	}

	if err := db.persist(); err != nil {
		return Stream{}, err
	}

	return stream, nil
}

// RestoreStream puts a stream, and its extension when compounding, back
// exactly as captured before a failed external transfer. This preserves the
// all-or-nothing contract: a transfer failure leaves no trace of the
// operation.
func (db *Database) RestoreStream(stream Stream, ext CompoundingExtension, compounding bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.streams[stream.ID] = stream
	if compounding {
		db.extensions[stream.ID] = ext
	}

	return db.persist()
}

// DiscardStream unwinds a stream that was just created and never observed
// outside the creating operation. Unlike DeleteStream it hands the
// identifier back, so an aborted creation leaves no gap in the id sequence.
func (db *Database) DiscardStream(streamID uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.streams[streamID]; !exists {
		return fmt.Errorf("stream %d: %w", streamID, ErrStreamNotFound)
	}

	delete(db.streams, streamID)
	delete(db.extensions, streamID)
	if streamID == db.nextStreamID-1 {
		db.nextStreamID--
	}

	return db.persist()
}

// DeleteStream removes the stream and any compounding extension. Used by
// cancellation, which settles the full remaining balance.
func (db *Database) DeleteStream(streamID uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.streams[streamID]; !exists {
		return fmt.Errorf("stream %d: %w", streamID, ErrStreamNotFound)
	}

	delete(db.streams, streamID)
	delete(db.extensions, streamID)

	return db.persist()
}

// =============================================================================

// Fee returns the global protocol fee taken off all accrued interest.
func (db *Database) Fee() money.Fixed {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.fee
}

// SetFee updates the global protocol fee. The fee is a fraction in the
// range [0%, 100%].
func (db *Database) SetFee(fee money.Fixed) error {
	if fee.Cmp(money.One()) > 0 {
		return fmt.Errorf("fee %s: %w", fee, ErrInvalidFee)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	old := db.fee
	db.fee = fee

	if err := db.persist(); err != nil {
		db.fee = old
		return err
	}

	return nil
}

// IsAllowed reports whether the asset may back compounding streams.
func (db *Database) IsAllowed(assetID AssetID) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.allowed[assetID]
}

// AllowAsset adds the asset to the compounding allow list.
func (db *Database) AllowAsset(assetID AssetID) error {
	if !assetID.IsAssetID() {
		return fmt.Errorf("asset %q: %w", assetID, ErrInvalidAsset)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.allowed[assetID] = true

	if err := db.persist(); err != nil {
		delete(db.allowed, assetID)
		return err
	}

	return nil
}

// RevokeAsset removes the asset from the compounding allow list. Existing
// compounding streams keep running.
func (db *Database) RevokeAsset(assetID AssetID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.allowed[assetID] {
		return fmt.Errorf("asset %q: %w", assetID, ErrAssetNotAllowed)
	}

	delete(db.allowed, assetID)

	if err := db.persist(); err != nil {
		db.allowed[assetID] = true
		return err
	}

	return nil
}

// Earnings returns the protocol's accumulated interest for the asset.
func (db *Database) Earnings(assetID AssetID) uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.earnings[assetID]
}

// AddEarnings credits interest retained by the protocol for the asset.
func (db *Database) AddEarnings(assetID AssetID, amount uint64) error {
	if amount == 0 {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	total, err := money.SafeAdd(db.earnings[assetID], amount)
	if err != nil {
		return fmt.Errorf("earnings %q: %w", assetID, err)
	}

	old := db.earnings[assetID]
	db.earnings[assetID] = total

	if err := db.persist(); err != nil {
		db.earnings[assetID] = old
		return err
	}

	return nil
}

// TakeEarnings debits the protocol's accumulated interest for the asset,
// bounded by the tracked balance.
func (db *Database) TakeEarnings(assetID AssetID, amount uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	remaining, err := money.SafeSub(db.earnings[assetID], amount)
	if err != nil {
		return fmt.Errorf("earnings %q: %w", assetID, ErrInsufficientFunds)
	}

	old := db.earnings[assetID]
	db.earnings[assetID] = remaining

	if err := db.persist(); err != nil {
		db.earnings[assetID] = old
		return err
	}

	return nil
}

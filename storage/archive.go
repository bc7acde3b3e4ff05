// Package storage archives the engine's audit entries in LevelDB.
// The archive is append-only: entries are written once and never updated.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/buzzy-coder/time-decay-consensus/history"
	"github.com/buzzy-coder/time-decay-consensus/types"
)

var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("key not found")

	// ErrClosed is returned when the archive is closed
	ErrClosed = errors.New("archive is closed")

	// Key prefixes for different entry types
	prefixRecord = []byte("r") // r + seq -> VoteRecord
	prefixWeight = []byte("w") // w + seq -> WeightEntry
	prefixMeta   = []byte("m") // m + key -> metadata

	metaRecordSeq = metaKey("record_seq")
	metaWeightSeq = metaKey("weight_seq")
)

// Archive persists vote records and weight entries
type Archive struct {
	mu        sync.RWMutex
	db        *leveldb.DB
	closed    bool
	path      string
	recordSeq uint64
	weightSeq uint64
}

// ArchiveConfig configures the archive
type ArchiveConfig struct {
	Path        string
	WriteBuffer int // LevelDB write buffer size in MB
	CacheSize   int // LevelDB cache size in MB
}

// DefaultArchiveConfig returns a default configuration
func DefaultArchiveConfig(path string) ArchiveConfig {
	return ArchiveConfig{
		Path:        path,
		WriteBuffer: 4,
		CacheSize:   8,
	}
}

// NewArchive opens (or creates) an archive
func NewArchive(config ArchiveConfig) (*Archive, error) {
	opts := &opt.Options{
		WriteBuffer:        config.WriteBuffer * opt.MiB,
		BlockCacheCapacity: config.CacheSize * opt.MiB,
	}

	db, err := leveldb.OpenFile(config.Path, opts)
	if err != nil {
		return nil, err
	}

	a := &Archive{db: db, path: config.Path}

	if a.recordSeq, err = a.loadSeq(metaRecordSeq); err != nil {
		db.Close()
		return nil, err
	}
	if a.weightSeq, err = a.loadSeq(metaWeightSeq); err != nil {
		db.Close()
		return nil, err
	}

	return a, nil
}

// Close closes the archive
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

// Path returns the archive directory
func (a *Archive) Path() string {
	return a.path
}

func seqKey(prefix []byte, seq uint64) []byte {
	key := make([]byte, 9)
	key[0] = prefix[0]
	binary.BigEndian.PutUint64(key[1:], seq)
	return key
}

func metaKey(name string) []byte {
	key := make([]byte, 1+len(name))
	key[0] = prefixMeta[0]
	copy(key[1:], name)
	return key
}

func (a *Archive) loadSeq(key []byte) (uint64, error) {
	data, err := a.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

// append writes value under the next sequence number and advances the
// stored counter in the same batch
func (a *Archive) append(prefix, seqMeta []byte, seq *uint64, value interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	next := *seq + 1
	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, next)

	batch := new(leveldb.Batch)
	batch.Put(seqKey(prefix, next), data)
	batch.Put(seqMeta, seqBytes)

	if err := a.db.Write(batch, nil); err != nil {
		return err
	}
	*seq = next
	return nil
}

// AppendRecord archives a vote outcome record
func (a *Archive) AppendRecord(record types.VoteRecord) error {
	return a.append(prefixRecord, metaRecordSeq, &a.recordSeq, record)
}

// AppendWeight archives a weight history entry
func (a *Archive) AppendWeight(entry types.WeightEntry) error {
	return a.append(prefixWeight, metaWeightSeq, &a.weightSeq, entry)
}

// Record returns the record at sequence number seq (1-based)
func (a *Archive) Record(seq uint64) (*types.VoteRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, ErrClosed
	}

	data, err := a.db.Get(seqKey(prefixRecord, seq), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var r types.VoteRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Records returns all vote records in append order
func (a *Archive) Records() ([]types.VoteRecord, error) {
	return a.RecordsMatching(func(types.VoteRecord) bool { return true })
}

// RecordsForProposal returns the records of one proposal in append order
func (a *Archive) RecordsForProposal(proposalID string) ([]types.VoteRecord, error) {
	return a.RecordsMatching(func(r types.VoteRecord) bool { return r.ProposalID == proposalID })
}

// RecordsMatching returns the records accepted by keep, in append order
func (a *Archive) RecordsMatching(keep func(types.VoteRecord) bool) ([]types.VoteRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, ErrClosed
	}

	records := make([]types.VoteRecord, 0)

	iter := a.db.NewIterator(util.BytesPrefix(prefixRecord), nil)
	defer iter.Release()

	for iter.Next() {
		var r types.VoteRecord
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, err
		}
		if keep(r) {
			records = append(records, r)
		}
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}
	return records, nil
}

// WeightEntries returns all weight entries in append order
func (a *Archive) WeightEntries() ([]types.WeightEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, ErrClosed
	}

	entries := make([]types.WeightEntry, 0)

	iter := a.db.NewIterator(util.BytesPrefix(prefixWeight), nil)
	defer iter.Release()

	for iter.Next() {
		var e types.WeightEntry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of archived records and weight entries
func (a *Archive) Count() (records, weights uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.recordSeq, a.weightSeq
}

// LoadAnalyzer seeds a history analyzer with every archived record
func (a *Archive) LoadAnalyzer() (*history.Analyzer, error) {
	records, err := a.Records()
	if err != nil {
		return nil, err
	}
	an := history.NewAnalyzer()
	for _, r := range records {
		an.RecordVote(r)
	}
	return an, nil
}

// Package statestore persists engine snapshots in a key-value store.
//
// Snapshots are msgpack-encoded and, above a configurable size, lz4
// block compressed. Each save writes the snapshot under its epoch and
// advances a latest pointer, so a crash between the two writes leaves
// the previous snapshot intact.
package statestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4"
	"github.com/ugorji/go/codec"

	"github.com/railpay/paymentsd/internal/core/engine"
	"github.com/railpay/paymentsd/internal/storage/kvstore"
)

var (
	// ErrNoSnapshot is returned when the store holds no snapshot yet.
	ErrNoSnapshot = errors.New("no snapshot stored")

	// ErrCorruptSnapshot is returned when a stored record cannot be
	// decoded.
	ErrCorruptSnapshot = errors.New("corrupt snapshot record")
)

const (
	frameRaw byte = 0
	frameLZ4 byte = 1

	// lz4 frames carry the flag byte plus the uncompressed length.
	lz4HeaderLen = 1 + 4
)

var (
	latestKey   = []byte("snapshot/latest")
	epochPrefix = []byte("snapshot/epoch/")
)

// Store reads and writes engine snapshots.
type Store struct {
	db kvstore.DB

	// compressThreshold is the encoded size in bytes above which records
	// are lz4 compressed. Zero disables compression.
	compressThreshold int
}

func New(db kvstore.DB, compressThreshold int) *Store {
	return &Store{db: db, compressThreshold: compressThreshold}
}

// Save persists a snapshot under its epoch and moves the latest pointer.
func (s *Store) Save(ctx context.Context, snap *engine.Snapshot) error {
	encoded, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	framed, err := s.frame(encoded)
	if err != nil {
		return fmt.Errorf("frame snapshot: %w", err)
	}

	latest := make([]byte, 8)
	binary.BigEndian.PutUint64(latest, snap.CurrentEpoch)

	ops := []kvstore.BatchOperation{
		{Type: kvstore.BatchPut, Key: epochKey(snap.CurrentEpoch), Value: framed},
		{Type: kvstore.BatchPut, Key: latestKey, Value: latest},
	}
	return s.db.Batch(ctx, ops)
}

// Load returns the snapshot stored for a specific epoch.
func (s *Store) Load(ctx context.Context, epoch uint64) (*engine.Snapshot, error) {
	raw, err := s.db.Read(ctx, epochKey(epoch))
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	return decodeFramed(raw)
}

// LoadLatest returns the most recently saved snapshot and its epoch.
func (s *Store) LoadLatest(ctx context.Context) (*engine.Snapshot, uint64, error) {
	raw, err := s.db.Read(ctx, latestKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil, 0, ErrNoSnapshot
		}
		return nil, 0, err
	}
	if len(raw) != 8 {
		return nil, 0, ErrCorruptSnapshot
	}
	epoch := binary.BigEndian.Uint64(raw)

	snap, err := s.Load(ctx, epoch)
	if err != nil {
		return nil, 0, err
	}
	return snap, epoch, nil
}

// Epochs lists the epochs with a stored snapshot, in ascending order.
func (s *Store) Epochs(ctx context.Context) ([]uint64, error) {
	it, err := s.db.Iterator(ctx, epochPrefix, prefixEnd(epochPrefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var epochs []uint64
	for it.Next() {
		key := it.Key()
		if len(key) != len(epochPrefix)+8 {
			continue
		}
		epochs = append(epochs, binary.BigEndian.Uint64(key[len(epochPrefix):]))
	}
	return epochs, it.Error()
}

// Prune removes all but the newest keep snapshots.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if keep < 1 {
		keep = 1
	}
	epochs, err := s.Epochs(ctx)
	if err != nil {
		return err
	}
	if len(epochs) <= keep {
		return nil
	}

	var ops []kvstore.BatchOperation
	for _, epoch := range epochs[:len(epochs)-keep] {
		ops = append(ops, kvstore.BatchOperation{Type: kvstore.BatchDelete, Key: epochKey(epoch)})
	}
	return s.db.Batch(ctx, ops)
}

func epochKey(epoch uint64) []byte {
	key := make([]byte, len(epochPrefix)+8)
	copy(key, epochPrefix)
	binary.BigEndian.PutUint64(key[len(epochPrefix):], epoch)
	return key
}

// prefixEnd returns the smallest key greater than every key with the
// given prefix.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func encodeSnapshot(snap *engine.Snapshot) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, msgpackHandle())
	if err := enc.Encode(snap); err != nil {
		return nil, err
	}
	return buf, nil
}

func decodeSnapshot(data []byte) (*engine.Snapshot, error) {
	var snap engine.Snapshot
	dec := codec.NewDecoderBytes(data, msgpackHandle())
	if err := dec.Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func msgpackHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.Canonical = true
	return h
}

// frame prefixes the encoded snapshot with its storage format. Records
// above the threshold are lz4 block compressed with the uncompressed
// length recorded so decode can size the output buffer exactly.
func (s *Store) frame(encoded []byte) ([]byte, error) {
	if s.compressThreshold <= 0 || len(encoded) < s.compressThreshold {
		out := make([]byte, 1+len(encoded))
		out[0] = frameRaw
		copy(out[1:], encoded)
		return out, nil
	}

	compressed := make([]byte, lz4HeaderLen+lz4.CompressBlockBound(len(encoded)))
	n, err := lz4.CompressBlock(encoded, compressed[lz4HeaderLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}
	if n == 0 || n >= len(encoded) {
		// Incompressible; store raw.
		out := make([]byte, 1+len(encoded))
		out[0] = frameRaw
		copy(out[1:], encoded)
		return out, nil
	}

	compressed[0] = frameLZ4
	binary.BigEndian.PutUint32(compressed[1:lz4HeaderLen], uint32(len(encoded)))
	return compressed[:lz4HeaderLen+n], nil
}

func decodeFramed(raw []byte) (*engine.Snapshot, error) {
	if len(raw) == 0 {
		return nil, ErrCorruptSnapshot
	}

	switch raw[0] {
	case frameRaw:
		return decodeSnapshot(raw[1:])
	case frameLZ4:
		if len(raw) < lz4HeaderLen {
			return nil, ErrCorruptSnapshot
		}
		size := binary.BigEndian.Uint32(raw[1:lz4HeaderLen])
		decompressed := make([]byte, size)
		n, err := lz4.UncompressBlock(raw[lz4HeaderLen:], decompressed)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompression failed: %w", err)
		}
		return decodeSnapshot(decompressed[:n])
	default:
		return nil, fmt.Errorf("%w: unknown frame format %d", ErrCorruptSnapshot, raw[0])
	}
}

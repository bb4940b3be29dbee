package codec

import (
	"bytes"
	"errors"

	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/zerr"
)

// EncodeOrigin encodes origin metadata: build invocation id, cache key, execution time.
func EncodeOrigin(o domain.OriginMetadata) []byte {
	e := newEncoder()
	e.origin(o)
	return e.buf
}

// DecodeOrigin decodes bytes produced by EncodeOrigin.
func DecodeOrigin(data []byte) (domain.OriginMetadata, error) {
	d := newDecoder(data)
	o := d.origin()
	if err := d.finish(); err != nil {
		return domain.OriginMetadata{}, err
	}
	return o, nil
}

// EncodeHistoryEntry encodes a complete execution history entry.
func EncodeHistoryEntry(entry *domain.ExecutionHistoryEntry) []byte {
	e := newEncoder()
	e.str(entry.TaskIdentity)
	e.digest(entry.ImplementationIdentity)
	e.properties(entry.InputProperties)
	e.properties(entry.OutputProperties)
	e.origin(entry.Origin)
	e.strings(entry.OverlappingOutputs)
	e.boolean(entry.Successful)
	return e.buf
}

// DecodeHistoryEntry decodes bytes produced by EncodeHistoryEntry.
func DecodeHistoryEntry(data []byte) (*domain.ExecutionHistoryEntry, error) {
	d := newDecoder(data)
	entry := &domain.ExecutionHistoryEntry{
		TaskIdentity:           d.str("task_identity"),
		ImplementationIdentity: d.digest("implementation_identity"),
		InputProperties:        d.properties("input_properties"),
		OutputProperties:       d.properties("output_properties"),
		Origin:                 d.origin(),
		OverlappingOutputs:     d.strings("overlapping_outputs"),
		Successful:             d.boolean("successful"),
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return entry, nil
}

// EncodeCacheEntry frames a cache payload behind its origin metadata.
func EncodeCacheEntry(entry *domain.CacheEntry) []byte {
	e := newEncoder()
	e.origin(entry.Origin)
	e.bytes(entry.Payload)
	return e.buf
}

// DecodeCacheEntry decodes bytes produced by EncodeCacheEntry.
func DecodeCacheEntry(data []byte) (*domain.CacheEntry, error) {
	d := newDecoder(data)
	origin := d.origin()
	payload := d.bytes("payload")
	if err := d.finish(); err != nil {
		return nil, err
	}
	entry := &domain.CacheEntry{Origin: origin}
	if len(payload) > 0 {
		entry.Payload = bytes.Clone(payload)
	}
	return entry, nil
}

// DecodeCacheEntryFor decodes a cache entry and checks that it was stored under key.
// A mismatch is reported as both ErrKeyMismatch and ErrDecode.
func DecodeCacheEntryFor(key domain.CacheKey, data []byte) (*domain.CacheEntry, error) {
	entry, err := DecodeCacheEntry(data)
	if err != nil {
		return nil, err
	}
	if entry.Origin.CacheKey != key {
		mismatch := zerr.With(zerr.Wrap(domain.ErrKeyMismatch, "origin key differs from lookup key"), "expected", key.String())
		mismatch = zerr.With(mismatch, "actual", entry.Origin.CacheKey.String())
		return nil, errors.Join(domain.ErrDecode, mismatch)
	}
	return entry, nil
}

// Package codec implements the versioned binary encoding of origin metadata,
// execution history entries and cache entries.
//
// Every record starts with a format-version byte. Counts and lengths are
// unsigned varints, durations are zigzag varints of milliseconds, and strings
// and digests are length-prefixed. Empty collections decode as nil, which is
// the canonical empty value of every record field.
package codec

import (
	"math"
	"time"

	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/zerr"
	"google.golang.org/protobuf/encoding/protowire"
)

// FormatVersion is written as the first byte of every record.
const FormatVersion byte = 1

type encoder struct {
	buf []byte
}

func newEncoder() *encoder {
	return &encoder{buf: []byte{FormatVersion}}
}

func (e *encoder) uvarint(v uint64) {
	e.buf = protowire.AppendVarint(e.buf, v)
}

func (e *encoder) str(s string) {
	e.buf = protowire.AppendString(e.buf, s)
}

func (e *encoder) bytes(b []byte) {
	e.buf = protowire.AppendBytes(e.buf, b)
}

func (e *encoder) digest(d domain.Digest) {
	e.buf = protowire.AppendBytes(e.buf, d[:])
}

func (e *encoder) duration(d time.Duration) {
	e.buf = protowire.AppendVarint(e.buf, protowire.EncodeZigZag(d.Milliseconds()))
}

func (e *encoder) boolean(b bool) {
	e.buf = protowire.AppendVarint(e.buf, protowire.EncodeBool(b))
}

func (e *encoder) origin(o domain.OriginMetadata) {
	e.str(o.BuildInvocationID)
	e.digest(o.CacheKey.Digest())
	e.duration(o.ExecutionTime)
}

func (e *encoder) properties(props []domain.PropertyFingerprint) {
	e.uvarint(uint64(len(props)))
	for _, p := range props {
		e.str(p.Name)
		e.uvarint(uint64(p.Kind))
		e.digest(p.Digest)
	}
}

func (e *encoder) strings(values []string) {
	e.uvarint(uint64(len(values)))
	for _, v := range values {
		e.str(v)
	}
}

type decoder struct {
	buf []byte
	err error
}

func newDecoder(data []byte) *decoder {
	d := &decoder{buf: data}
	if len(data) == 0 {
		d.fail("empty input", "version")
		return d
	}
	if data[0] != FormatVersion {
		d.err = zerr.With(zerr.Wrap(domain.ErrDecode, "unsupported format version"), "version", int(data[0]))
		return d
	}
	d.buf = data[1:]
	return d
}

func (d *decoder) fail(reason, field string) {
	if d.err == nil {
		d.err = zerr.With(zerr.Wrap(domain.ErrDecode, reason), "field", field)
	}
}

func (d *decoder) uvarint(field string) uint64 {
	if d.err != nil {
		return 0
	}
	v, n := protowire.ConsumeVarint(d.buf)
	if n < 0 {
		d.fail("truncated varint", field)
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) bytes(field string) []byte {
	if d.err != nil {
		return nil
	}
	v, n := protowire.ConsumeBytes(d.buf)
	if n < 0 {
		d.fail("truncated bytes", field)
		return nil
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) str(field string) string {
	return string(d.bytes(field))
}

func (d *decoder) digest(field string) domain.Digest {
	raw := d.bytes(field)
	if d.err != nil {
		return domain.Digest{}
	}
	if len(raw) != domain.DigestSize {
		d.err = zerr.With(zerr.With(zerr.Wrap(domain.ErrDecode, "invalid digest length"), "field", field), "length", len(raw))
		return domain.Digest{}
	}
	return domain.DigestFromBytes(raw)
}

func (d *decoder) duration(field string) time.Duration {
	v := d.uvarint(field)
	return time.Duration(protowire.DecodeZigZag(v)) * time.Millisecond
}

func (d *decoder) boolean(field string) bool {
	v := d.uvarint(field)
	if d.err == nil && v > 1 {
		d.fail("invalid boolean", field)
	}
	return v == 1
}

// count reads a collection length and rejects values that cannot fit in the
// remaining input, each element taking at least minSize bytes.
func (d *decoder) count(field string, minSize int) int {
	n := d.uvarint(field)
	if d.err != nil {
		return 0
	}
	if n > uint64(len(d.buf)/minSize) {
		d.fail("truncated collection", field)
		return 0
	}
	return int(n)
}

func (d *decoder) origin() domain.OriginMetadata {
	return domain.OriginMetadata{
		BuildInvocationID: d.str("origin.build_invocation_id"),
		CacheKey:          domain.CacheKey(d.digest("origin.cache_key")),
		ExecutionTime:     d.duration("origin.execution_time"),
	}
}

func (d *decoder) properties(field string) []domain.PropertyFingerprint {
	// name length, kind, digest length and digest bytes
	n := d.count(field, 3+domain.DigestSize)
	if n == 0 {
		return nil
	}
	props := make([]domain.PropertyFingerprint, 0, n)
	for range n {
		name := d.str(field + ".name")
		rawKind := d.uvarint(field + ".kind")
		digest := d.digest(field + ".digest")
		if d.err != nil {
			return nil
		}
		kind := domain.FingerprintKind(rawKind)
		if rawKind > math.MaxUint8 || !kind.Valid() {
			d.err = zerr.With(zerr.With(zerr.Wrap(domain.ErrDecode, "unknown fingerprint kind"), "field", field), "kind", rawKind)
			return nil
		}
		props = append(props, domain.PropertyFingerprint{Name: name, Kind: kind, Digest: digest})
	}
	return props
}

func (d *decoder) strings(field string) []string {
	n := d.count(field, 1)
	if n == 0 {
		return nil
	}
	values := make([]string, 0, n)
	for range n {
		values = append(values, d.str(field))
	}
	if d.err != nil {
		return nil
	}
	return values
}

// finish reports the first error, or an error if unread bytes remain.
func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if len(d.buf) != 0 {
		return zerr.With(zerr.Wrap(domain.ErrDecode, "trailing bytes"), "count", len(d.buf))
	}
	return nil
}

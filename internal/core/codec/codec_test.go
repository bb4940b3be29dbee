package codec_test

import (
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/memo/internal/core/codec"
	"go.trai.ch/memo/internal/core/domain"
)

func sequentialDigest() domain.Digest {
	var d domain.Digest
	for i := range d {
		d[i] = byte(i)
	}
	return d
}

func sampleEntry() *domain.ExecutionHistoryEntry {
	key := domain.CacheKey(domain.DigestOfString("key"))
	return &domain.ExecutionHistoryEntry{
		TaskIdentity:           ":app:compileJava",
		ImplementationIdentity: domain.DigestOfString("javac-21"),
		InputProperties: []domain.PropertyFingerprint{
			{Name: "source", Kind: domain.Unordered, Digest: domain.DigestOfString("src")},
			{Name: "options", Kind: domain.Ordered, Digest: domain.DigestOfString("-g")},
		},
		OutputProperties: []domain.PropertyFingerprint{
			{Name: "classes", Kind: domain.Unordered, Digest: domain.DigestOfString("out")},
		},
		Origin:             domain.NewOriginMetadata("f3c1a3d0-build", key, 1234*time.Millisecond),
		OverlappingOutputs: []string{"classes"},
		Successful:         true,
	}
}

func TestEncodeOrigin_Golden(t *testing.T) {
	origin := domain.OriginMetadata{
		BuildInvocationID: "build-1",
		CacheKey:          domain.CacheKey(sequentialDigest()),
		ExecutionTime:     1500 * time.Millisecond,
	}

	g := goldie.New(t)
	g.Assert(t, "origin_v1", []byte(hex.EncodeToString(codec.EncodeOrigin(origin))))
}

func TestOrigin_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := []domain.OriginMetadata{
		{},
		{BuildInvocationID: "b", CacheKey: domain.CacheKey(sequentialDigest()), ExecutionTime: time.Hour},
		{BuildInvocationID: "ünïcode\x00with-nul", ExecutionTime: -3 * time.Millisecond},
		domain.NewOriginMetadata("trunc", domain.CacheKey{}, 1500*time.Microsecond),
	}

	for _, want := range cases {
		got, err := codec.DecodeOrigin(codec.EncodeOrigin(want))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, codec.EncodeHistoryEntry(sampleEntry()), codec.EncodeHistoryEntry(sampleEntry()))
}

func TestHistoryEntry_RoundTrip(t *testing.T) {
	t.Parallel()

	entries := []*domain.ExecutionHistoryEntry{
		sampleEntry(),
		{TaskIdentity: "bare"},
	}

	for _, want := range entries {
		got, err := codec.DecodeHistoryEntry(codec.EncodeHistoryEntry(want))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestHistoryEntry_EmptyCollectionsDecodeAsNil(t *testing.T) {
	t.Parallel()

	entry := &domain.ExecutionHistoryEntry{
		TaskIdentity:       "empty",
		InputProperties:    []domain.PropertyFingerprint{},
		OutputProperties:   []domain.PropertyFingerprint{},
		OverlappingOutputs: []string{},
	}

	got, err := codec.DecodeHistoryEntry(codec.EncodeHistoryEntry(entry))
	require.NoError(t, err)
	assert.Nil(t, got.InputProperties)
	assert.Nil(t, got.OutputProperties)
	assert.Nil(t, got.OverlappingOutputs)
}

func TestCacheEntry_RoundTrip(t *testing.T) {
	t.Parallel()

	key := domain.CacheKey(domain.DigestOfString("k"))
	want := &domain.CacheEntry{
		Origin:  domain.NewOriginMetadata("build", key, time.Second),
		Payload: []byte("packed outputs"),
	}

	data := codec.EncodeCacheEntry(want)
	got, err := codec.DecodeCacheEntryFor(key, data)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	data[len(data)-1] = 'X'
	assert.Equal(t, []byte("packed outputs"), got.Payload, "payload must not alias the input buffer")
}

func TestDecodeCacheEntryFor_KeyMismatch(t *testing.T) {
	t.Parallel()

	stored := domain.CacheKey(domain.DigestOfString("stored"))
	data := codec.EncodeCacheEntry(&domain.CacheEntry{Origin: domain.OriginMetadata{CacheKey: stored}})

	_, err := codec.DecodeCacheEntryFor(domain.CacheKey(domain.DigestOfString("lookup")), data)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrKeyMismatch))
	assert.True(t, errors.Is(err, domain.ErrDecode))
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	valid := codec.EncodeHistoryEntry(sampleEntry())

	wrongDigest := []byte{codec.FormatVersion}
	wrongDigest = append(wrongDigest, 1, 'x', 3, 1, 2, 3)

	badKind := codec.EncodeHistoryEntry(&domain.ExecutionHistoryEntry{
		InputProperties: []domain.PropertyFingerprint{{Name: "p", Kind: domain.Ordered}},
	})
	// version, empty identity, implementation digest (1+32), input count, name "p"
	kindOffset := 1 + 1 + 33 + 1 + 2
	badKind[kindOffset] = 7

	// 257 as a varint; it would truncate to Ordered as a byte.
	wideKind := append(append(append([]byte{}, badKind[:kindOffset]...), 0x81, 0x02), badKind[kindOffset+1:]...)

	hugeCount := []byte{codec.FormatVersion, 0, 0x20}
	hugeCount = append(hugeCount, make([]byte, domain.DigestSize)...)
	hugeCount = append(hugeCount, 0xff, 0xff, 0x03)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "unknown version", data: append([]byte{99}, valid[1:]...)},
		{name: "truncated", data: valid[:len(valid)/2]},
		{name: "truncated by one byte", data: valid[:len(valid)-1]},
		{name: "trailing bytes", data: append(append([]byte{}, valid...), 0)},
		{name: "wrong digest length", data: wrongDigest},
		{name: "unknown kind", data: badKind},
		{name: "kind wider than a byte", data: wideKind},
		{name: "huge count", data: hugeCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.DecodeHistoryEntry(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrDecode), "got %v", err)
		})
	}
}

package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"slices"

	godigest "github.com/opencontainers/go-digest"
	"go.trai.ch/zerr"
)

// DigestSize is the length in bytes of every Digest.
const DigestSize = sha256.Size

// Digest is a fixed-length SHA-256 content hash.
// It is comparable with == and safe to use as a map key.
type Digest [DigestSize]byte

// DigestOf hashes the given bytes.
func DigestOf(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// DigestOfString hashes the given string.
func DigestOfString(s string) Digest {
	return DigestOf([]byte(s))
}

// DigestFromBytes copies b into a Digest.
// It panics if b does not have exactly DigestSize bytes.
func DigestFromBytes(b []byte) Digest {
	if len(b) != DigestSize {
		panic("domain: digest must be 32 bytes")
	}
	var d Digest
	copy(d[:], b)
	return d
}

// ParseDigest parses the "sha256:<hex>" form produced by String.
// A bare hex string is accepted as well.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	parsed, err := godigest.Parse(s)
	if err != nil {
		parsed, err = godigest.Parse(string(godigest.SHA256) + ":" + s)
		if err != nil {
			return d, zerr.With(zerr.Wrap(err, "invalid digest"), "digest", s)
		}
	}
	if parsed.Algorithm() != godigest.SHA256 {
		return d, zerr.With(zerr.New("unsupported digest algorithm"), "algorithm", string(parsed.Algorithm()))
	}
	raw, err := decodeHex(parsed.Encoded())
	if err != nil {
		return d, zerr.With(err, "digest", s)
	}
	copy(d[:], raw)
	return d, nil
}

// String returns the OCI-style "sha256:<hex>" form.
func (d Digest) String() string {
	return godigest.NewDigestFromBytes(godigest.SHA256, d[:]).String()
}

// Hex returns the lowercase hex encoding without the algorithm prefix.
func (d Digest) Hex() string {
	return godigest.NewDigestFromBytes(godigest.SHA256, d[:]).Encoded()
}

// Short returns the first 12 hex characters, for log output.
func (d Digest) Short() string {
	return d.Hex()[:12]
}

// IsZero reports whether d is the zero value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Compare orders digests byte-wise.
func (d Digest) Compare(other Digest) int {
	return bytes.Compare(d[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Combine hashes the digests in the given order into one Digest.
// Swapping two elements changes the result.
func Combine(digests ...Digest) Digest {
	h := sha256.New()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(digests)))
	_, _ = h.Write(n[:])
	for i := range digests {
		_, _ = h.Write(digests[i][:])
	}
	var out Digest
	h.Sum(out[:0])
	return out
}

// CombineUnordered combines the digests independently of their order.
// The input is not modified. Duplicates are significant.
func CombineUnordered(digests ...Digest) Digest {
	sorted := slices.Clone(digests)
	slices.SortFunc(sorted, Digest.Compare)
	return Combine(sorted...)
}

func decodeHex(s string) ([]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, zerr.Wrap(err, "invalid hex in digest")
	}
	if len(raw) != DigestSize {
		return nil, zerr.With(zerr.New("invalid digest length"), "length", len(raw))
	}
	return raw, nil
}

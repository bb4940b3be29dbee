package domain

import (
	"slices"
	"strings"
)

// cacheKeyDomain separates cache keys from every other digest the tool computes.
const cacheKeyDomain = "memo/cache-key/v1"

// CacheKey identifies a task's complete cacheable identity: implementation,
// inputs and output property names.
type CacheKey Digest

// NewCacheKey combines the implementation identity, the input properties and the
// output property names into a CacheKey. Properties and names are sorted first,
// so declaration order does not affect the key.
func NewCacheKey(implementation Digest, inputs []PropertyFingerprint, outputNames []string) CacheKey {
	sortedInputs := slices.Clone(inputs)
	slices.SortFunc(sortedInputs, func(a, b PropertyFingerprint) int {
		return strings.Compare(a.Name, b.Name)
	})
	sortedOutputs := slices.Clone(outputNames)
	slices.Sort(sortedOutputs)

	parts := make([]Digest, 0, 2+2*len(sortedInputs)+len(sortedOutputs))
	parts = append(parts, DigestOfString(cacheKeyDomain), implementation)
	for _, in := range sortedInputs {
		parts = append(parts,
			DigestOfString(in.Kind.String()+"\x00"+in.Name),
			in.Digest,
		)
	}
	for _, name := range sortedOutputs {
		parts = append(parts, DigestOfString("output\x00"+name))
	}
	return CacheKey(Combine(parts...))
}

// Digest returns the key as a plain Digest.
func (k CacheKey) Digest() Digest {
	return Digest(k)
}

// String returns the "sha256:<hex>" form.
func (k CacheKey) String() string {
	return Digest(k).String()
}

// Hex returns the lowercase hex encoding used for storage paths and remote URLs.
func (k CacheKey) Hex() string {
	return Digest(k).Hex()
}

// Short returns an abbreviated hex form for log messages.
func (k CacheKey) Short() string {
	return Digest(k).Short()
}

// IsZero reports whether the key is unset.
func (k CacheKey) IsZero() bool {
	return Digest(k).IsZero()
}

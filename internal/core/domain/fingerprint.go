package domain

// FingerprintKind selects how a property's digests are combined.
type FingerprintKind uint8

const (
	// Ordered properties are sensitive to element order, e.g. command-line arguments.
	Ordered FingerprintKind = iota + 1
	// Unordered properties are treated as a set, e.g. classpath entries or source trees.
	Unordered
)

// String returns the lowercase name of the kind.
func (k FingerprintKind) String() string {
	switch k {
	case Ordered:
		return "ordered"
	case Unordered:
		return "unordered"
	default:
		return "unknown"
	}
}

// Valid reports whether k is a known kind.
func (k FingerprintKind) Valid() bool {
	return k == Ordered || k == Unordered
}

// Fingerprint is the current state of one declared property: a sequence of digests
// tagged with the rule used to combine them.
type Fingerprint struct {
	Kind    FingerprintKind
	Digests []Digest
}

// OrderedFingerprint builds an order-sensitive fingerprint.
func OrderedFingerprint(digests ...Digest) Fingerprint {
	return Fingerprint{Kind: Ordered, Digests: digests}
}

// UnorderedFingerprint builds an order-insensitive fingerprint.
func UnorderedFingerprint(digests ...Digest) Fingerprint {
	return Fingerprint{Kind: Unordered, Digests: digests}
}

// Digest collapses the fingerprint into a single Digest using the rule of its kind.
func (f Fingerprint) Digest() Digest {
	if f.Kind == Unordered {
		return CombineUnordered(f.Digests...)
	}
	return Combine(f.Digests...)
}

// InputProperty is a named fingerprint as supplied by the fingerprinting collaborator.
type InputProperty struct {
	Name        string
	Fingerprint Fingerprint
}

// Property turns the input into its persisted form.
func (p InputProperty) Property() PropertyFingerprint {
	return PropertyFingerprint{
		Name:   p.Name,
		Kind:   p.Fingerprint.Kind,
		Digest: p.Fingerprint.Digest(),
	}
}

// PropertyFingerprint is the persisted form of a property: its name, kind and combined digest.
type PropertyFingerprint struct {
	Name   string
	Kind   FingerprintKind
	Digest Digest
}

// Properties converts inputs to their persisted form, keeping the declared order.
func Properties(inputs []InputProperty) []PropertyFingerprint {
	if len(inputs) == 0 {
		return nil
	}
	out := make([]PropertyFingerprint, len(inputs))
	for i, in := range inputs {
		out[i] = in.Property()
	}
	return out
}

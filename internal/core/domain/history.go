package domain

// ExecutionHistoryEntry is the last known execution state of one task.
// A new execution replaces the whole entry.
type ExecutionHistoryEntry struct {
	TaskIdentity           string
	ImplementationIdentity Digest
	InputProperties        []PropertyFingerprint
	OutputProperties       []PropertyFingerprint
	Origin                 OriginMetadata
	// OverlappingOutputs names output properties that another task also wrote.
	OverlappingOutputs []string
	Successful         bool
}

// Input returns the recorded input property with the given name.
func (e *ExecutionHistoryEntry) Input(name string) (PropertyFingerprint, bool) {
	return findProperty(e.InputProperties, name)
}

// Output returns the recorded output property with the given name.
func (e *ExecutionHistoryEntry) Output(name string) (PropertyFingerprint, bool) {
	return findProperty(e.OutputProperties, name)
}

func findProperty(props []PropertyFingerprint, name string) (PropertyFingerprint, bool) {
	for _, p := range props {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyFingerprint{}, false
}

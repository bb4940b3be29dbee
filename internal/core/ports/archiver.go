package ports

// Archiver packs task outputs into cache payloads and restores them.
//
//go:generate mockgen -source=archiver.go -destination=mocks/mock_archiver.go -package=mocks
type Archiver interface {
	// Pack archives the given paths, relative to root.
	Pack(root string, paths []string) ([]byte, error)
	// Unpack restores a payload produced by Pack below root.
	Unpack(root string, payload []byte) error
}

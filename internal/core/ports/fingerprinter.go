package ports

import "go.trai.ch/memo/internal/core/domain"

// Fingerprinter computes content fingerprints of declared task properties.
//
//go:generate mockgen -source=fingerprinter.go -destination=mocks/mock_fingerprinter.go -package=mocks
type Fingerprinter interface {
	// FingerprintInputs fingerprints every declared input in declaration order.
	FingerprintInputs(root string, inputs []domain.InputSpec) ([]domain.InputProperty, error)
	// FingerprintOutputs fingerprints every declared output in declaration order.
	// Missing output files leave their property out of the result.
	FingerprintOutputs(root string, outputs []domain.OutputSpec) ([]domain.PropertyFingerprint, error)
}

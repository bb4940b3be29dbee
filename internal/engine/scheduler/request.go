package scheduler

import (
	"path/filepath"
	"slices"

	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/zerr"
)

// Implementation returns the identity of what a task runs: its command line,
// working directory relative to root, environment and declared output paths.
// Absolute locations are left out so that checkouts in different directories
// agree on it.
func Implementation(root string, task *domain.Task) domain.Digest {
	parts := make([]domain.Digest, 0, len(task.Command)+len(task.Environment)+4)

	parts = append(parts, domain.DigestOfString("cmd"))
	for _, arg := range task.Command {
		parts = append(parts, domain.DigestOfString(arg))
	}

	wd := task.WorkingDir
	if rel, err := filepath.Rel(root, wd); err == nil && filepath.IsAbs(wd) {
		wd = rel
	}
	parts = append(parts, domain.DigestOfString("cwd\x00"+filepath.ToSlash(wd)))

	keys := make([]string, 0, len(task.Environment))
	for k := range task.Environment {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		parts = append(parts, domain.DigestOfString("env\x00"+k+"="+task.Environment[k]))
	}

	for _, out := range task.Outputs {
		paths := make([]domain.Digest, 0, len(out.Paths))
		for _, p := range out.Paths {
			paths = append(paths, domain.DigestOfString(filepath.ToSlash(filepath.Clean(p))))
		}
		parts = append(parts, domain.DigestOfString("out\x00"+out.Name), domain.CombineUnordered(paths...))
	}

	return domain.Combine(parts...)
}

// Request fingerprints task below root and assembles what the engine needs to
// evaluate it. overlapping names the task's output properties that another task
// also writes.
func (s *Scheduler) Request(root string, task *domain.Task, overlapping []string) (*domain.EvaluationRequest, error) {
	inputs, err := s.fingerprinter.FingerprintInputs(root, task.Inputs)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to fingerprint inputs"), "task", task.Name)
	}

	current, err := s.fingerprinter.FingerprintOutputs(root, task.Outputs)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to fingerprint outputs"), "task", task.Name)
	}
	if current == nil {
		// Outputs were fingerprinted and none were found.
		current = []domain.PropertyFingerprint{}
	}

	present, err := s.verifier.VerifyOutputs(root, task.OutputPaths())
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to verify outputs"), "task", task.Name)
	}

	return &domain.EvaluationRequest{
		TaskIdentity:       task.Name,
		Implementation:     Implementation(root, task),
		Inputs:             inputs,
		OutputNames:        task.OutputNames(),
		CurrentOutputs:     current,
		OutputsMissing:     !present,
		OverlappingOutputs: overlapping,
		Cacheable:          task.Cacheable,
	}, nil
}

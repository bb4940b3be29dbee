// Package uptodate compares a task's current state against its recorded
// execution history.
package uptodate

import (
	"strings"

	"go.trai.ch/memo/internal/core/domain"
)

// Result is the outcome of Check. Reason and Message explain the first
// difference found; Property names the input or output it concerns.
type Result struct {
	UpToDate bool
	Reason   domain.Reason
	Property string
	Message  string
}

func upToDate() Result {
	return Result{UpToDate: true, Reason: domain.ReasonUpToDate, Message: "up to date"}
}

func outOfDate(reason domain.Reason, property, message string) Result {
	return Result{Reason: reason, Property: property, Message: message}
}

// Check decides whether the outputs recorded in previous are still valid for req.
//
// Rules are applied in a fixed order and the first failing rule is reported:
// missing history, failed previous execution, implementation identity, inputs in
// declared order followed by removed inputs, missing outputs, changed outputs and
// finally overlapping outputs.
func Check(previous *domain.ExecutionHistoryEntry, req *domain.EvaluationRequest) Result {
	if previous == nil {
		return outOfDate(domain.ReasonNoHistory, "", "no history")
	}
	if !previous.Successful {
		return outOfDate(domain.ReasonPreviousFailed, "", "previous execution failed")
	}
	if previous.ImplementationIdentity != req.Implementation {
		return outOfDate(domain.ReasonImplementationChanged, "", "implementation changed")
	}
	if r, ok := compareInputs(previous, req.Inputs); !ok {
		return r
	}
	if req.OutputsMissing {
		return outOfDate(domain.ReasonOutputMissing, "", "output missing")
	}
	if req.CurrentOutputs != nil {
		if r, ok := compareOutputs(previous, req.CurrentOutputs); !ok {
			return r
		}
	}
	if len(req.OverlappingOutputs) > 0 {
		return outOfDate(domain.ReasonOverlappingOutputs, req.OverlappingOutputs[0],
			"outputs overlap with another task: "+strings.Join(req.OverlappingOutputs, ", "))
	}
	return upToDate()
}

func compareInputs(previous *domain.ExecutionHistoryEntry, inputs []domain.InputProperty) (Result, bool) {
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		seen[in.Name] = struct{}{}
		recorded, ok := previous.Input(in.Name)
		if !ok {
			return outOfDate(domain.ReasonInputAdded, in.Name, in.Name+" added"), false
		}
		if recorded != in.Property() {
			return outOfDate(domain.ReasonInputChanged, in.Name, in.Name+" changed"), false
		}
	}
	for _, recorded := range previous.InputProperties {
		if _, ok := seen[recorded.Name]; !ok {
			return outOfDate(domain.ReasonInputRemoved, recorded.Name, recorded.Name+" removed"), false
		}
	}
	return Result{}, true
}

func compareOutputs(previous *domain.ExecutionHistoryEntry, current []domain.PropertyFingerprint) (Result, bool) {
	byName := make(map[string]domain.PropertyFingerprint, len(current))
	for _, out := range current {
		byName[out.Name] = out
	}
	for _, recorded := range previous.OutputProperties {
		out, ok := byName[recorded.Name]
		if !ok {
			return outOfDate(domain.ReasonOutputMissing, recorded.Name, "output "+recorded.Name+" missing"), false
		}
		if out != recorded {
			return outOfDate(domain.ReasonOutputChanged, recorded.Name, "output "+recorded.Name+" changed"), false
		}
		delete(byName, recorded.Name)
	}
	for _, out := range current {
		if _, ok := byName[out.Name]; ok {
			return outOfDate(domain.ReasonOutputChanged, out.Name, "output "+out.Name+" changed"), false
		}
	}
	return Result{}, true
}

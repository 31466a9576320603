package core

import (
	"context"
	"errors"
	"math"

	"materialcore/pkg/domain"
)

// EditState tracks the lifecycle of a snapshot edit.
type EditState string

const (
	EditProposed  EditState = "proposed"
	EditValidated EditState = "validated"
	EditCommitted EditState = "committed"
	EditRejected  EditState = "rejected"
)

// ErrEditClosed is returned when a committed or rejected handle is used again.
var ErrEditClosed = errors.New("edit handle is closed")

// Share is one component's working values inside an edit.
type Share struct {
	ComponentID       string
	Average           float64
	StandardDeviation float64
	Deleted           bool
}

// EditHandle is a mutable working copy of one snapshot's fractions. A handle
// is not safe for concurrent use.
type EditHandle struct {
	SnapshotID   string
	AssignmentID string

	version    int64
	state      EditState
	components map[string]struct{}
	order      []string
	shares     map[string]*Share
	fractionID map[string]string
}

// State reports the handle's lifecycle state.
func (h *EditHandle) State() EditState { return h.state }

// Version is the snapshot version the working copy was read at.
func (h *EditHandle) Version() int64 { return h.version }

// Shares returns the working copy in component order, including rows marked for deletion.
func (h *EditHandle) Shares() []Share {
	out := make([]Share, 0, len(h.order))
	for _, cid := range h.order {
		out = append(out, *h.shares[cid])
	}
	return out
}

// Sum totals the averages of rows not marked for deletion.
func (h *EditHandle) Sum() float64 {
	var sum float64
	for _, cid := range h.order {
		if sh := h.shares[cid]; !sh.Deleted {
			sum += sh.Average
		}
	}
	return sum
}

// SetShare updates the working values of a component. Out-of-range input is
// rejected before the working copy changes.
func (h *EditHandle) SetShare(componentID string, average, standardDeviation float64) error {
	if math.IsNaN(average) || average < 0 || average > 1 {
		return domain.OutOfRange("average", average, 0, 1)
	}
	if math.IsNaN(standardDeviation) || standardDeviation < 0 || standardDeviation > 1 {
		return domain.OutOfRange("standard_deviation", standardDeviation, 0, 1)
	}
	if h.state != EditProposed {
		return ErrEditClosed
	}
	if _, ok := h.components[componentID]; !ok {
		return &domain.Error{Kind: domain.KindNotFound, Entity: EntityComponent, ID: componentID, Detail: "component not assigned"}
	}
	sh, ok := h.shares[componentID]
	if !ok {
		sh = &Share{ComponentID: componentID}
		h.shares[componentID] = sh
		h.order = append(h.order, componentID)
	}
	sh.Average = average
	sh.StandardDeviation = standardDeviation
	sh.Deleted = false
	return nil
}

// MarkForDeletion excludes a component's row from the sum and removes it on commit.
func (h *EditHandle) MarkForDeletion(componentID string) error {
	if h.state != EditProposed {
		return ErrEditClosed
	}
	sh, ok := h.shares[componentID]
	if !ok {
		return &domain.Error{Kind: domain.KindNotFound, Entity: EntityWeightFraction, Field: "component", Detail: "no share for component " + componentID}
	}
	sh.Deleted = true
	return nil
}

// BeginEdit reads a snapshot into a new working copy.
func (s *Service) BeginEdit(ctx context.Context, snapshotID string) (*EditHandle, error) {
	var h *EditHandle
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		snap, ok := view.FindSnapshot(snapshotID)
		if !ok {
			return domain.NotFound(EntitySnapshot, snapshotID)
		}
		a, ok := view.FindAssignment(snap.AssignmentID)
		if !ok {
			return domain.NotFound(EntityAssignment, snap.AssignmentID)
		}
		h = &EditHandle{
			SnapshotID:   snapshotID,
			AssignmentID: a.ID,
			version:      snap.Version,
			state:        EditProposed,
			components:   make(map[string]struct{}, len(a.ComponentIDs)),
			shares:       make(map[string]*Share, len(snap.FractionIDs)),
			fractionID:   make(map[string]string, len(snap.FractionIDs)),
		}
		for _, cid := range a.ComponentIDs {
			h.components[cid] = struct{}{}
		}
		for _, fid := range snap.FractionIDs {
			f, ok := view.FindWeightFraction(fid)
			if !ok {
				return domain.NotFound(EntityWeightFraction, fid)
			}
			h.shares[f.ComponentID] = &Share{ComponentID: f.ComponentID, Average: f.Average, StandardDeviation: f.StandardDeviation}
			h.fractionID[f.ComponentID] = f.ID
			h.order = append(h.order, f.ComponentID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// CommitEdit validates and writes the working copy in one transaction. A
// snapshot changed since BeginEdit yields a retryable conflict; an unbalanced
// working copy is rejected. Either failure leaves stored state untouched and
// closes the handle.
func (s *Service) CommitEdit(ctx context.Context, h *EditHandle) (Result, error) {
	if h == nil || h.state != EditProposed {
		return Result{}, ErrEditClosed
	}
	var version int64
	res, err := s.run(ctx, "commit_edit", func(tx domain.Transaction) (string, error) {
		snap, ok := tx.FindSnapshot(h.SnapshotID)
		if !ok {
			return h.SnapshotID, domain.NotFound(EntitySnapshot, h.SnapshotID)
		}
		if snap.Version != h.version {
			return h.SnapshotID, domain.Conflict(EntitySnapshot, h.SnapshotID, "snapshot changed since the edit began")
		}
		if sum := h.Sum(); math.Abs(sum-1) > domain.BalanceTolerance {
			return h.SnapshotID, domain.Unbalanced(h.SnapshotID, sum)
		}
		h.state = EditValidated
		for _, cid := range h.order {
			sh := h.shares[cid]
			fid, stored := h.fractionID[cid]
			switch {
			case sh.Deleted && stored:
				if err := tx.DeleteWeightFraction(fid); err != nil {
					return h.SnapshotID, err
				}
			case sh.Deleted:
			case stored:
				if _, err := tx.UpdateWeightFraction(fid, func(f *WeightFraction) error {
					f.Average = sh.Average
					f.StandardDeviation = sh.StandardDeviation
					return nil
				}); err != nil {
					return h.SnapshotID, err
				}
			default:
				if _, err := tx.CreateWeightFraction(WeightFraction{
					SnapshotID:        h.SnapshotID,
					ComponentID:       cid,
					Average:           sh.Average,
					StandardDeviation: sh.StandardDeviation,
				}); err != nil {
					return h.SnapshotID, err
				}
			}
		}
		snap, _ = tx.FindSnapshot(h.SnapshotID)
		version = snap.Version
		return h.SnapshotID, nil
	})
	if err != nil {
		h.state = EditRejected
		return res, err
	}
	h.state = EditCommitted
	h.version = version
	return res, nil
}

// EditWithRetry begins an edit, lets apply modify it and commits, re-reading
// and re-applying when another writer committed first.
func (s *Service) EditWithRetry(ctx context.Context, snapshotID string, attempts int, apply func(*EditHandle) error) (Result, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		h, err := s.BeginEdit(ctx, snapshotID)
		if err != nil {
			return Result{}, err
		}
		if err := apply(h); err != nil {
			return Result{}, err
		}
		res, err := s.CommitEdit(ctx, h)
		if err == nil || !domain.IsRetryable(err) {
			return res, err
		}
		lastErr = err
	}
	return Result{}, lastErr
}

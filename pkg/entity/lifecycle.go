package entity

import (
	"slices"
	"strings"

	"github.com/dukex/composer/pkg/models"
)

var transitions = map[models.EntityStatus][]models.EntityStatus{
	models.EntityStatusDraft:      {models.EntityStatusActive},
	models.EntityStatusActive:     {models.EntityStatusDeprecated, models.EntityStatusArchived},
	models.EntityStatusDeprecated: {models.EntityStatusArchived},
	models.EntityStatusArchived:   {},
}

// NextStatuses returns the statuses reachable in one step from the given one.
func NextStatuses(from models.EntityStatus) []models.EntityStatus {
	return slices.Clone(transitions[from])
}

// CanTransition reports whether the status change is permitted.
// Staying in the same state is always allowed.
func CanTransition(from, to models.EntityStatus) bool {
	if _, known := transitions[to]; !known {
		return false
	}

	if from == to {
		return true
	}

	return slices.Contains(transitions[from], to)
}

// Transition moves the entity to a new status or returns a *TransitionError.
func Transition(e *models.Entity, to models.EntityStatus) error {
	if _, known := transitions[to]; !known {
		return ErrUnknownStatus
	}

	if !CanTransition(e.Status, to) {
		return &TransitionError{From: string(e.Status), To: string(to)}
	}

	e.Status = to

	return nil
}

// NormalizeTags trims, drops empty values and removes duplicates while
// keeping first-insertion order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}

		seen[tag] = true
		out = append(out, tag)
	}

	return out
}

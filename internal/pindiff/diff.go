// Package pindiff computes the set of pin changes between two manifest
// snapshots.
package pindiff

import (
	"slices"

	"github.com/bumpdiff/bumpdiff/internal/models"
)

// Diff compares two pin-sets and returns every changed pin, sorted by
// sub-project name in byte order so reports are stable across runs. A pin
// present on both sides with an identical declaration is excluded.
func Diff(old, new models.PinSet) []models.PinChange {
	names := make([]string, 0, len(old)+len(new))
	for name := range old {
		names = append(names, name)
	}
	for name := range new {
		if _, ok := old[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	var changes []models.PinChange
	for _, name := range names {
		oldPin, inOld := old[name]
		newPin, inNew := new[name]

		switch {
		case inOld && inNew:
			if oldPin == newPin {
				continue
			}
			o, n := oldPin, newPin
			changes = append(changes, models.PinChange{
				Name: name, Kind: models.ChangeUpdated, Old: &o, New: &n,
			})
		case inNew:
			n := newPin
			changes = append(changes, models.PinChange{
				Name: name, Kind: models.ChangeAdded, New: &n,
			})
		default:
			o := oldPin
			changes = append(changes, models.PinChange{
				Name: name, Kind: models.ChangeRemoved, Old: &o,
			})
		}
	}
	return changes
}

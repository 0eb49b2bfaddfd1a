// Package ordered maintains explicit, contiguous orderings over lists of
// owned child entities. Array position is the only source of truth for
// order; there is no persisted rank or weight field, so every mutation of
// an ordered list must go through this package.
package ordered

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the referenced element is not present in the list.
var ErrNotFound = errors.New("element not found")

// ErrInvalidIndex indicates a position outside the valid bounds of the list.
var ErrInvalidIndex = errors.New("index out of bounds")

// Element is implemented by entities that live in an ordered list.
type Element interface {
	Identity() string
	DisplayName() string
}

// InsertAt places item at the given index, shifting later elements right.
// A negative index appends. Valid positions are 0 through len(list).
func InsertAt[T any](list []T, item T, index int) ([]T, error) {
	if index < 0 {
		index = len(list)
	}
	if index > len(list) {
		return nil, fmt.Errorf("insert at %d in list of %d: %w", index, len(list), ErrInvalidIndex)
	}

	result := make([]T, 0, len(list)+1)
	result = append(result, list[:index]...)
	result = append(result, item)
	result = append(result, list[index:]...)
	return result, nil
}

// IndexOf locates an element by identity, returning -1 when absent.
func IndexOf[T Element](list []T, id string) int {
	for i, item := range list {
		if item.Identity() == id {
			return i
		}
	}
	return -1
}

// MoveToIndex relocates the element with the given identity to newIndex.
// The new position is interpreted against the list after removal, so moving
// an element past its own old slot leaves no gap and the relative order of
// all other elements is preserved.
func MoveToIndex[T Element](list []T, id string, newIndex int) ([]T, error) {
	oldIndex := IndexOf(list, id)
	if oldIndex < 0 {
		return nil, fmt.Errorf("move %q: %w", id, ErrNotFound)
	}
	if newIndex < 0 || newIndex > len(list) {
		return nil, fmt.Errorf("move to %d in list of %d: %w", newIndex, len(list), ErrInvalidIndex)
	}

	item := list[oldIndex]
	remaining := make([]T, 0, len(list)-1)
	remaining = append(remaining, list[:oldIndex]...)
	remaining = append(remaining, list[oldIndex+1:]...)

	if newIndex > len(remaining) {
		newIndex = len(remaining)
	}

	return InsertAt(remaining, item, newIndex)
}

// RemoveByID filters out the element with the given identity. Position stays
// implicit, so no renumbering is needed.
func RemoveByID[T Element](list []T, id string) ([]T, error) {
	index := IndexOf(list, id)
	if index < 0 {
		return nil, fmt.Errorf("remove %q: %w", id, ErrNotFound)
	}

	result := make([]T, 0, len(list)-1)
	result = append(result, list[:index]...)
	result = append(result, list[index+1:]...)
	return result, nil
}

// Duplicate clones the element with the given identity and inserts the copy
// immediately after the original. The clone callback receives the original
// and the synthesized display name and must return a copy with a fresh
// identity.
func Duplicate[T Element](list []T, id, namePrefix string, clone func(original T, name string) T) ([]T, error) {
	index := IndexOf(list, id)
	if index < 0 {
		return nil, fmt.Errorf("duplicate %q: %w", id, ErrNotFound)
	}

	name := UniqueName(list, namePrefix)
	copied := clone(list[index], name)
	return InsertAt(list, copied, index+1)
}

// UniqueName probes "<prefix><n>" for the smallest positive integer n not
// already used as a display name in the list. If every probed slot collides
// it falls back to len(list)+1, which cannot collide with fewer names than
// probes.
func UniqueName[T Element](list []T, prefix string) string {
	used := make(map[string]struct{}, len(list))
	for _, item := range list {
		used[item.DisplayName()] = struct{}{}
	}

	for n := 1; n <= len(list); n++ {
		candidate := fmt.Sprintf("%s%d", prefix, n)
		if _, taken := used[candidate]; !taken {
			return candidate
		}
	}
	return fmt.Sprintf("%s%d", prefix, len(list)+1)
}

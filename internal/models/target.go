package models

import "fmt"

type targetKind int

const (
	targetLatest targetKind = iota
	targetSpecific
)

// Target selects which execution the viewer inspects. The zero value is
// Latest.
type Target struct {
	kind targetKind
	id   int64
}

func Latest() Target {
	return Target{kind: targetLatest}
}

func Specific(id int64) Target {
	return Target{kind: targetSpecific, id: id}
}

func (t Target) IsLatest() bool {
	return t.kind == targetLatest
}

// ID returns the selected execution id. ok is false for Latest.
func (t Target) ID() (id int64, ok bool) {
	if t.kind != targetSpecific {
		return 0, false
	}
	return t.id, true
}

func (t Target) String() string {
	if id, ok := t.ID(); ok {
		return fmt.Sprintf("#%d", id)
	}
	return "latest"
}

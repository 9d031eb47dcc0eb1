package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Labels is an optional list of issue labels that keeps three states apart:
// absent from the payload, explicitly null, and present (possibly empty).
type Labels struct {
	set    bool
	values []string
}

// LabelsOf returns present labels. LabelsOf() is an empty, non-null list.
func LabelsOf(values ...string) Labels {
	if values == nil {
		values = []string{}
	}
	return Labels{set: true, values: values}
}

// NullLabels returns labels that were sent as JSON null.
func NullLabels() Labels {
	return Labels{set: true}
}

// Present reports whether the field appeared in the payload at all.
func (l Labels) Present() bool { return l.set }

// IsNull reports whether the field appeared as null.
func (l Labels) IsNull() bool { return l.set && l.values == nil }

// Values returns the labels; nil when absent or null.
func (l Labels) Values() []string { return l.values }

// IsZero lets the omitzero tag drop absent labels when encoding.
func (l Labels) IsZero() bool { return !l.set }

func (l *Labels) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = NullLabels()
		return nil
	}
	var elems []*string
	if err := json.Unmarshal(data, &elems); err != nil {
		return err
	}
	values := make([]string, len(elems))
	for i, e := range elems {
		if e == nil {
			return &nullLabelError{index: i}
		}
		values[i] = *e
	}
	*l = LabelsOf(values...)
	return nil
}

// nullLabelError reports a null element inside a labels array.
type nullLabelError struct {
	index int
}

func (e *nullLabelError) Error() string {
	return fmt.Sprintf("labels[%d]: expected string, got null", e.index)
}

func (l Labels) MarshalJSON() ([]byte, error) {
	if l.values == nil {
		return []byte("null"), nil
	}
	return json.Marshal(l.values)
}

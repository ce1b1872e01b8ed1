package device

import (
	"slices"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-dtu/internal/frame"
)

// warnings accumulates active warning codes across 0x07 records.
type warnings []int

func (w *warnings) add(rec frame.DataRecord) {
	*w = append(*w, rec.Readings...)
}

// codes returns the de-duplicated codes in ascending order.
func (w warnings) codes() []int {
	if len(w) == 0 {
		return []int{}
	}
	out := slices.Clone(w)
	slices.Sort(out)
	return slices.Compact(out)
}

// fingerprint is the canonical warning string, "" when nothing is active.
func (w warnings) fingerprint() string {
	codes := w.codes()
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

// reading0 returns a pointer to index 0 of rec, or nil when absent.
func reading0(rec frame.DataRecord) *int {
	v, ok := rec.Reading(0)
	if !ok {
		return nil
	}
	return &v
}

func deref(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// ScreenMonitor is the payload of a screen/camera monitor unit.
type ScreenMonitor struct {
	Status   *int
	Warnings warnings
}

// Apply implements Decodable.
func (m *ScreenMonitor) Apply(rec frame.DataRecord) {
	switch rec.Type {
	case frame.DataTypeStatus:
		m.Status = reading0(rec)
	case frame.DataTypeWarning:
		m.Warnings.add(rec)
	}
}

// Fingerprint implements ChangeDetectable.
func (m *ScreenMonitor) Fingerprint() string {
	return m.Warnings.fingerprint()
}

// Attributes implements Persistable.
func (m *ScreenMonitor) Attributes() map[string]any {
	return map[string]any{
		"status":   deref(m.Status),
		"warnings": m.Warnings.codes(),
	}
}

// Readings implements Persistable.
func (m *ScreenMonitor) Readings() map[string]float64 {
	out := make(map[string]float64, 1)
	if m.Status != nil {
		out["status"] = float64(*m.Status)
	}
	return out
}

// SmokeSensor is the payload of a smoke concentration sensor.
type SmokeSensor struct {
	// PT is the smoke concentration.
	PT *int

	// Y1 is the auxiliary reading.
	Y1 *int

	Warnings warnings
}

// Apply implements Decodable.
func (s *SmokeSensor) Apply(rec frame.DataRecord) {
	switch rec.Type {
	case frame.DataTypePT:
		s.PT = reading0(rec)
	case frame.DataTypeY1:
		s.Y1 = reading0(rec)
	case frame.DataTypeWarning:
		s.Warnings.add(rec)
	}
}

// Fingerprint implements ChangeDetectable.
func (s *SmokeSensor) Fingerprint() string {
	return s.Warnings.fingerprint()
}

// Attributes implements Persistable.
func (s *SmokeSensor) Attributes() map[string]any {
	return map[string]any{
		"pt":       deref(s.PT),
		"y1":       deref(s.Y1),
		"warnings": s.Warnings.codes(),
	}
}

// Readings implements Persistable.
func (s *SmokeSensor) Readings() map[string]float64 {
	out := make(map[string]float64, 2)
	if s.PT != nil {
		out["pt"] = float64(*s.PT)
	}
	if s.Y1 != nil {
		out["y1"] = float64(*s.Y1)
	}
	return out
}

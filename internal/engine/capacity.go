package engine

import (
	"fmt"

	"github.com/noah-isme/sd-cohort-api/internal/models"
)

// CapacityManager checks per-(grade, section) occupancy against a fixed ceiling.
type CapacityManager struct {
	ceiling int
}

// NewCapacityManager builds a manager; a non-positive ceiling falls back to SectionCapacity.
func NewCapacityManager(ceiling int) CapacityManager {
	if ceiling <= 0 {
		ceiling = SectionCapacity
	}
	return CapacityManager{ceiling: ceiling}
}

// Ceiling returns the per-section limit.
func (m CapacityManager) Ceiling() int {
	if m.ceiling <= 0 {
		return SectionCapacity
	}
	return m.ceiling
}

// CanAdmit reports whether one more approved enrollment fits.
func (m CapacityManager) CanAdmit(grade Grade, section, currentCount int) bool {
	if grade < MinGrade || grade > MaxGrade || ValidateSection(section) != nil {
		return false
	}
	return currentCount < m.Ceiling()
}

// CheckAdmission is CanAdmit with a typed error for the caller to surface.
func (m CapacityManager) CheckAdmission(grade Grade, section, currentCount int) error {
	if err := ValidateSection(section); err != nil {
		return err
	}
	if !m.CanAdmit(grade, section, currentCount) {
		return capacityError(m.fullMessage(currentCount), currentCount, m.Ceiling())
	}
	return nil
}

func (m CapacityManager) fullMessage(current int) string {
	return fmt.Sprintf("section full (%d/%d)", current, m.Ceiling())
}

// Occupancy lists every section 1..MaxSections with its count. Sections absent from counts are empty.
func (m CapacityManager) Occupancy(counts map[int]int) []models.SectionOccupancy {
	out := make([]models.SectionOccupancy, 0, MaxSections)
	for section := 1; section <= MaxSections; section++ {
		count := counts[section]
		out = append(out, models.SectionOccupancy{
			Section:   section,
			Occupancy: count,
			Capacity:  m.Ceiling(),
			Available: count < m.Ceiling(),
		})
	}
	return out
}

// AvailableSections lists, in section order, only the sections below the ceiling.
func (m CapacityManager) AvailableSections(counts map[int]int) []models.SectionOccupancy {
	all := m.Occupancy(counts)
	out := all[:0]
	for _, s := range all {
		if s.Available {
			out = append(out, s)
		}
	}
	return out
}

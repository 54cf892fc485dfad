package enums

import "fmt"

// Specialization is the trade a service provider is registered for.
type Specialization string

const (
	SpecializationGeneral        Specialization = "general"
	SpecializationCarSpecialist  Specialization = "car_specialist"
	SpecializationBikeSpecialist Specialization = "bike_specialist"
	SpecializationElectrician    Specialization = "electrician"
	SpecializationPainter        Specialization = "painter"
)

var validSpecializations = []Specialization{
	SpecializationGeneral,
	SpecializationCarSpecialist,
	SpecializationBikeSpecialist,
	SpecializationElectrician,
	SpecializationPainter,
}

// IsValid reports whether the value is a known Specialization.
func (s Specialization) IsValid() bool {
	for _, candidate := range validSpecializations {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSpecialization converts raw input into a Specialization.
func ParseSpecialization(value string) (Specialization, error) {
	for _, candidate := range validSpecializations {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid specialization %q", value)
}

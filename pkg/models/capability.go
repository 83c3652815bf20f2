package models

// Modality is a biometric sensor kind.
type Modality string

const (
	ModalityFingerprint Modality = "fingerprint"
	ModalityFace        Modality = "face"
	ModalityIris        Modality = "iris"
)

// BiometricCapability describes what the device can do right now. It is
// re-derived on every query and never persisted.
type BiometricCapability struct {
	HasHardware bool       `json:"has_hardware"`
	IsEnrolled  bool       `json:"is_enrolled"`
	Modalities  []Modality `json:"supported_modalities"`
}

// Satisfied reports whether biometric authentication can be performed at all.
func (c BiometricCapability) Satisfied() bool {
	return c.HasHardware && c.IsEnrolled
}

// Supports returns true if the modality is among the supported ones.
func (c BiometricCapability) Supports(m Modality) bool {
	for _, s := range c.Modalities {
		if s == m {
			return true
		}
	}
	return false
}

// PrimaryModality picks the modality prompt copy should refer to.
// Face wins over fingerprint, which wins over iris.
func (c BiometricCapability) PrimaryModality() Modality {
	for _, m := range []Modality{ModalityFace, ModalityFingerprint, ModalityIris} {
		if c.Supports(m) {
			return m
		}
	}
	return ""
}

// NoCapability is the fail-closed capability: nothing is offered.
func NoCapability() BiometricCapability {
	return BiometricCapability{Modalities: []Modality{}}
}

package biometric

import (
	"context"

	"github.com/org/applock/pkg/models"
	"github.com/rs/zerolog/log"
)

// Resolver answers "can this device do biometrics right now". It never
// caches: enrollment can change while the app is backgrounded.
type Resolver struct {
	platform Platform
}

// NewResolver creates a Resolver over the platform driver.
func NewResolver(p Platform) *Resolver {
	return &Resolver{platform: p}
}

// Query asks the platform. Any error yields NoCapability.
func (r *Resolver) Query(ctx context.Context) (capability models.BiometricCapability) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("component", "biometric").Msg("capability query panicked")
			capability = models.NoCapability()
		}
	}()

	raw, err := r.platform.Capability(ctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "biometric").Msg("capability query failed")
		return models.NoCapability()
	}

	capability = models.BiometricCapability{
		HasHardware: raw.HasHardware,
		IsEnrolled:  raw.HasHardware && raw.IsEnrolled,
		Modalities:  []models.Modality{},
	}
	seen := map[models.Modality]bool{}
	for _, code := range raw.ModalityCodes {
		m, ok := modalityFromCode(code)
		if !ok || seen[m] {
			continue
		}
		seen[m] = true
		capability.Modalities = append(capability.Modalities, m)
	}
	return capability
}

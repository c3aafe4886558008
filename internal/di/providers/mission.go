package providers

import (
	"github.com/samber/do/v2"

	"github.com/mapflag/mapflag-client/internal/logger"
	"github.com/mapflag/mapflag-client/internal/mission"
	"github.com/mapflag/mapflag-client/internal/validation"
)

// ProvideValidator provides the struct validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideMission provides the mission context. Created tags go through the tag
// store's remote and the list is refetched through the store.
func ProvideMission(i do.Injector) (*mission.Context, error) {
	log := do.MustInvoke[*logger.Logger](i)
	tagHandle := do.MustInvoke[*TagStoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)

	return mission.NewContext(mission.Options{
		Creator:   tagHandle.Remote,
		Refetcher: tagHandle.Store,
		Validator: validator,
		Emitter:   sseHandle.Manager,
		Logger:    log.Component("mission"),
	}), nil
}

// ProvideMissionBar provides the mission bar.
func ProvideMissionBar(i do.Injector) (*mission.Bar, error) {
	return mission.NewBar(do.MustInvoke[*mission.Context](i)), nil
}

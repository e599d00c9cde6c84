package modules

import (
	"github.com/iota-uz/autoassign/modules/assignment"
	"github.com/iota-uz/autoassign/pkg/application"
	"github.com/iota-uz/autoassign/pkg/authz"
	"github.com/iota-uz/autoassign/pkg/configuration"
)

// BuiltInModules returns the modules a stock deployment registers.
func BuiltInModules(conf *configuration.Configuration, authorizer authz.Authorizer) []application.Module {
	return []application.Module{
		assignment.NewModule(assignment.OptionsFromConfig(conf, authorizer)),
	}
}

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range externalModules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}

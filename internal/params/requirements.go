package params

import (
	"fmt"
	"strings"

	"github.com/harrison/buildgraph/internal/models"
)

// IsSet requires parameter name to resolve to a non-empty value.
func IsSet(name string) models.Requirement {
	return models.Requirement{
		Description: fmt.Sprintf("parameter %s is set", name),
		Check: func(bc *models.BuildContext) error {
			if v, ok := bc.Param(name); !ok || strings.TrimSpace(v) == "" {
				return fmt.Errorf("parameter %s is not set", name)
			}
			return nil
		},
	}
}

// Equals requires parameter name to equal value, ignoring case.
func Equals(name, value string) models.Requirement {
	return models.Requirement{
		Description: fmt.Sprintf("parameter %s equals %q", name, value),
		Check: func(bc *models.BuildContext) error {
			v, ok := bc.Param(name)
			if !ok {
				return fmt.Errorf("parameter %s is not set (want %q)", name, value)
			}
			if !strings.EqualFold(v, value) {
				return fmt.Errorf("parameter %s is %q, want %q", name, v, value)
			}
			return nil
		},
	}
}

// ServerBuild requires the invocation to run outside an interactive terminal.
func ServerBuild() models.Requirement {
	return models.Requirement{
		Description: "server build",
		Check: func(bc *models.BuildContext) error {
			if bc.IsLocalBuild() {
				return fmt.Errorf("only allowed on a server build")
			}
			return nil
		},
	}
}

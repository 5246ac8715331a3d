package config

import "fmt"

// ConfigInvalidError reports a structural or validation failure while
// loading the configuration tree (spec §7 ConfigInvalid).
type ConfigInvalidError struct {
	Reason string
}

func (e *ConfigInvalidError) Error() string {
	return fmt.Sprintf("config invalid: %s", e.Reason)
}

package criteria

import (
	"github.com/viant/schedsim/service/dao"
)

// Match reports whether value satisfies every parameter named name. Parameters
// with other names are ignored; no parameters match everything.
func Match(name, value string, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != name {
			continue
		}
		if !matches(value, parameter.Value) {
			return false
		}
	}
	return true
}

// FilterByState matches the "State" parameter
func FilterByState(state string, parameters []*dao.Parameter) bool {
	return Match("State", state, parameters)
}

func matches(value string, candidate interface{}) bool {
	switch actual := candidate.(type) {
	case string:
		return value == actual
	case []string:
		for _, s := range actual {
			if value == s {
				return true
			}
		}
		return false
	}
	return true
}

package dao

// Parameter is a named List filter; Value is a string or []string.
type Parameter struct {
	Name  string
	Value interface{}
}

// NewParameter creates a filter matching any of values
func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

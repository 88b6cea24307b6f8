package tools

import (
	"fmt"

	"github.com/BaSui01/queryflow/types"
)

// ValidateArguments checks args against the tool's declared parameter specs:
// required parameters must be present and every provided value must match
// its declared type. Unknown arguments are rejected to keep the contract
// closed.
func ValidateArguments(desc types.ToolDescriptor, args map[string]any) error {
	for name, spec := range desc.Parameters {
		val, ok := args[name]
		if !ok {
			if spec.Required {
				return types.NewError(types.ErrToolValidation,
					fmt.Sprintf("tool %s: missing required argument %q", desc.Name, name))
			}
			continue
		}
		if !matchesType(val, spec.Type) {
			return types.NewError(types.ErrToolValidation,
				fmt.Sprintf("tool %s: argument %q must be %s", desc.Name, name, spec.Type))
		}
	}

	for name := range args {
		if _, ok := desc.Parameters[name]; !ok {
			return types.NewError(types.ErrToolValidation,
				fmt.Sprintf("tool %s: unknown argument %q", desc.Name, name))
		}
	}
	return nil
}

func matchesType(val any, typ string) bool {
	switch typ {
	case "string":
		_, ok := val.(string)
		return ok
	case "number":
		switch val.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case "integer":
		switch v := val.(type) {
		case int, int32, int64:
			return true
		case float64:
			// JSON decoding yields float64 for all numbers.
			return v == float64(int64(v))
		}
		return false
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	case "":
		return true
	}
	return true
}

package schema

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// RepairAndValidate applies the structural repair policy from spec.md §4.2:
// every declared property that is missing, required or not, gets a zero
// instance of its declared type (array -> [], object -> {}, string -> "");
// a wrong-typed field of one of those types is replaced by the same empty
// instance rather than dropped. Number, integer and boolean fields are
// neither filled nor coerced. Repair
// never invents content. After repair, re-validation must pass; if it still
// doesn't, the repair is a no-op and the original errors are surfaced.
func (r *Registry) RepairAndValidate(doc map[string]interface{}, schemaName string) (map[string]interface{}, bool, []string) {
	if ok, errs := r.Validate(doc, schemaName); ok {
		return doc, true, nil
	} else if len(errs) == 0 {
		// defensive: Validate always returns errs on failure, but guard anyway
		return doc, false, []string{"unknown validation failure"}
	}

	raw, ok := r.RawSchema(schemaName)
	if !ok {
		_, errs := r.Validate(doc, schemaName)
		return doc, false, errs
	}

	repaired := cloneMap(doc)
	repairObject(repaired, raw)

	if valid, _ := r.Validate(repaired, schemaName); valid {
		return repaired, true, nil
	}

	// Repair didn't fix it: no-op, surface the original errors.
	_, errs := r.Validate(doc, schemaName)
	return doc, false, errs
}

// repairObject fills missing/mistyped fields of obj according to s's
// declared properties, recursing into nested object schemas.
func repairObject(obj map[string]interface{}, s *jsonschema.Schema) {
	if s == nil {
		return
	}
	for name, propSchema := range s.Properties {
		declaredType := primaryType(propSchema)
		val, present := obj[name]
		if !present {
			if zero, ok := zeroInstance(declaredType); ok {
				obj[name] = zero
			}
			continue
		}
		if !matchesType(val, declaredType) {
			if zero, ok := zeroInstance(declaredType); ok {
				obj[name] = zero
				continue
			}
		}
		if declaredType == "object" {
			if nested, ok := val.(map[string]interface{}); ok {
				repairObject(nested, propSchema)
			}
		}
		if declaredType == "array" && propSchema != nil && propSchema.Items != nil {
			if arr, ok := val.([]interface{}); ok {
				for _, item := range arr {
					if itemObj, ok := item.(map[string]interface{}); ok {
						repairObject(itemObj, propSchema.Items)
					}
				}
			}
		}
	}
}

func primaryType(s *jsonschema.Schema) string {
	if s == nil {
		return ""
	}
	return s.Type
}

func zeroInstance(declaredType string) (interface{}, bool) {
	switch declaredType {
	case "array":
		return []interface{}{}, true
	case "object":
		return map[string]interface{}{}, true
	case "string":
		return "", true
	default:
		return nil, false
	}
}

func matchesType(val interface{}, declaredType string) bool {
	switch declaredType {
	case "array":
		_, ok := val.([]interface{})
		return ok
	case "object":
		_, ok := val.(map[string]interface{})
		return ok
	case "string":
		_, ok := val.(string)
		return ok
	case "integer", "number":
		switch val.(type) {
		case float64, int, int64:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := val.(bool)
		return ok
	default:
		return true
	}
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = cloneMap(nested)
			continue
		}
		if arr, ok := v.([]interface{}); ok {
			cloned := make([]interface{}, len(arr))
			for i, item := range arr {
				if itemObj, ok := item.(map[string]interface{}); ok {
					cloned[i] = cloneMap(itemObj)
				} else {
					cloned[i] = item
				}
			}
			out[k] = cloned
			continue
		}
		out[k] = v
	}
	return out
}

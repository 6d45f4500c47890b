package consensus

// NewValueProposed is one row surfaced for downstream curation when a
// normalized value doesn't match any known_values entry for an enum
// field.
type NewValueProposed struct {
	Field string
	Value string
}

// DetectNewValues compares accepted field values against each field's
// known_values set (when the field is an enum) and emits a proposal row
// for every value with no match.
func DetectNewValues(accepted map[string]string, knownValues map[string][]string, normalize func(string) string) []NewValueProposed {
	var out []NewValueProposed
	for field, value := range accepted {
		if value == "" || value == "unk" {
			continue
		}
		known, ok := knownValues[field]
		if !ok {
			continue
		}
		norm := value
		if normalize != nil {
			norm = normalize(value)
		}
		matched := false
		for _, k := range known {
			kv := k
			if normalize != nil {
				kv = normalize(k)
			}
			if kv == norm {
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, NewValueProposed{Field: field, Value: value})
		}
	}
	return out
}

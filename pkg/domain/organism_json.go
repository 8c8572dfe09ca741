package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parent link spellings accepted from imported or legacy records, in
// precedence order. The first non-empty value wins.
var (
	sireAliases = []string{"sire_id", "sireId", "sire", "father_id"}
	damAliases  = []string{"dam_id", "damId", "dam", "mother_id"}
)

// organismFields mirrors Organism without its methods so the default decoder
// can populate the canonical fields.
type organismFields Organism

// UnmarshalJSON decodes an organism and folds every known parent alias into
// SireID and DamID. The legacy ordered parent_ids pair is read as [sire, dam]
// and only consulted when no explicit alias is present.
func (o *Organism) UnmarshalJSON(data []byte) error {
	var fields organismFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	sire, err := firstAlias(raw, sireAliases)
	if err != nil {
		return fmt.Errorf("decode organism sire: %w", err)
	}
	dam, err := firstAlias(raw, damAliases)
	if err != nil {
		return fmt.Errorf("decode organism dam: %w", err)
	}

	if legacy, ok := raw["parent_ids"]; ok && (sire == "" || dam == "") {
		var ids []string
		if err := json.Unmarshal(legacy, &ids); err != nil {
			return fmt.Errorf("decode organism parent_ids: %w", err)
		}
		if sire == "" && len(ids) > 0 {
			sire = strings.TrimSpace(ids[0])
		}
		if dam == "" && len(ids) > 1 {
			dam = strings.TrimSpace(ids[1])
		}
	}

	*o = Organism(fields)
	o.SireID = optionalID(sire)
	o.DamID = optionalID(dam)
	return nil
}

func firstAlias(raw map[string]json.RawMessage, aliases []string) (string, error) {
	for _, key := range aliases {
		value, ok := raw[key]
		if !ok || string(value) == "null" {
			continue
		}
		var id string
		if err := json.Unmarshal(value, &id); err != nil {
			return "", fmt.Errorf("%s: %w", key, err)
		}
		if id = strings.TrimSpace(id); id != "" {
			return id, nil
		}
	}
	return "", nil
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

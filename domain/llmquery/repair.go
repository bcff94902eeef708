package llmquery

import (
	"encoding/json"
	"fmt"
)

// DecodeERL parses raw model output into an EntitiesRelations graph. On a
// validation failure it attempts structural repair before giving up.
func DecodeERL(raw string) (*EntitiesRelations, error) {
	var erl EntitiesRelations
	if err := json.Unmarshal([]byte(raw), &erl); err != nil {
		return nil, fmt.Errorf("unparseable model output: %w", err)
	}
	if err := validateERL(&erl); err == nil {
		return &erl, nil
	}
	if repaired := repairERL(&erl); repaired != nil {
		return repaired, nil
	}
	return nil, fmt.Errorf("model output failed validation beyond repair")
}

// validateERL checks that every element carries its required fields.
func validateERL(erl *EntitiesRelations) error {
	for i, r := range erl.Relations {
		if r.Entity == "" || r.Relation == "" || r.Target == "" {
			return fmt.Errorf("relation %d missing required fields", i)
		}
	}
	for i, e := range erl.Entities {
		if e.Identifier == "" || e.Type == "" {
			return fmt.Errorf("entity %d missing required fields", i)
		}
	}
	return nil
}

// repairERL drops the trailing element of the relations list, then of the
// entities list, revalidating after each cut. The last element is the most
// likely to be truncated mid-generation. This is a heuristic: a defect
// earlier in the payload can cost a correct trailing element.
func repairERL(erl *EntitiesRelations) *EntitiesRelations {
	relations := erl.Relations
	entities := erl.Entities

	candidates := []EntitiesRelations{}
	if len(relations) > 0 {
		candidates = append(candidates, EntitiesRelations{
			Relations: relations[:len(relations)-1],
			Entities:  entities,
		})
	}
	if len(entities) > 0 {
		candidates = append(candidates, EntitiesRelations{
			Relations: relations,
			Entities:  entities[:len(entities)-1],
		})
	}
	if len(relations) > 0 && len(entities) > 0 {
		candidates = append(candidates, EntitiesRelations{
			Relations: relations[:len(relations)-1],
			Entities:  entities[:len(entities)-1],
		})
	}

	for i := range candidates {
		if validateERL(&candidates[i]) == nil {
			return &candidates[i]
		}
	}
	return nil
}

package protocol

import "encoding/json"

// MarshalJSON flattens Params alongside name/id so the wire form is a single
// flat object, e.g. {"name":"jump","id":"abc","target_height":1.2}.
func (p RewardPrimitive) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(p.Params)+2)
	for k, v := range p.Params {
		flat[k] = v
	}
	flat["name"] = p.Name
	if p.ID != "" {
		flat["id"] = p.ID
	}
	return json.Marshal(flat)
}

// UnmarshalJSON splits the flat wire object back into Name/ID/Params.
func (p *RewardPrimitive) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	p.Params = make(map[string]any, len(flat))
	for k, v := range flat {
		switch k {
		case "name":
			if s, ok := v.(string); ok {
				p.Name = s
			}
		case "id":
			if s, ok := v.(string); ok {
				p.ID = s
			}
		default:
			p.Params[k] = v
		}
	}
	return nil
}

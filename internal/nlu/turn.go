// Package nlu is the boundary with the natural-language classifier: parsed
// turns and typed entities, the button payload protocol and the HTTP
// classifier client.
package nlu

type Entity struct {
	Name       string  `json:"entity"`
	Value      string  `json:"value"`
	Start      int     `json:"start"`
	Confidence float64 `json:"confidence"`
	Tag        RoleTag `json:"-"`
}

func NewEntity(name, value string, start int, confidence float64) Entity {
	return Entity{
		Name:       name,
		Value:      value,
		Start:      start,
		Confidence: confidence,
		Tag:        ParseRoleTag(name),
	}
}

// WithTag returns a copy of e carrying tag instead of its current one.
func (e Entity) WithTag(tag RoleTag) Entity {
	e.Tag = tag
	e.Name = tag.String()
	return e
}

type Turn struct {
	Text       string   `json:"text"`
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   []Entity `json:"entities"`
}

func (t Turn) First(role Role) (Entity, bool) {
	for _, entity := range t.Entities {
		if entity.Tag.Role == role {
			return entity, true
		}
	}
	return Entity{}, false
}

func (t Turn) Value(role Role) string {
	entity, _ := t.First(role)
	return entity.Value
}

func (t Turn) Has(role Role) bool {
	_, ok := t.First(role)
	return ok
}

// Param looks an entity up by its raw name.
func (t Turn) Param(name string) (string, bool) {
	for _, entity := range t.Entities {
		if entity.Name == name {
			return entity.Value, true
		}
	}
	return "", false
}

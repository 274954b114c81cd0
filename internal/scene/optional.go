package scene

import "encoding/json"

// OptionalID is a reference that is either set to an id or explicitly
// absent. The zero value is absent.
type OptionalID struct {
	id  string
	set bool
}

// NoID is the absent reference.
var NoID = OptionalID{}

// SomeID returns a reference to id.
func SomeID(id string) OptionalID {
	return OptionalID{id: id, set: true}
}

// Get returns the id and whether it is set.
func (o OptionalID) Get() (string, bool) {
	return o.id, o.set
}

// IsSet reports whether the reference points at an id.
func (o OptionalID) IsSet() bool {
	return o.set
}

// Is reports whether the reference is set to id.
func (o OptionalID) Is(id string) bool {
	return o.set && o.id == id
}

func (o OptionalID) String() string {
	if !o.set {
		return "<none>"
	}
	return o.id
}

// MarshalJSON encodes an absent reference as null.
func (o OptionalID) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.id)
}

// UnmarshalJSON accepts null or a string.
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = NoID
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*o = SomeID(id)
	return nil
}

package attribute

// Value is a payload tagged by its attribute. The zero payload stands for the
// attribute's default; a Value borrows its descriptor from the registry that
// created it.
type Value struct {
	attr    *Attribute
	payload interface{}
}

// NewValue creates a value for the given attribute.
func NewValue(attr *Attribute, payload interface{}) Value {
	return Value{attr: attr, payload: payload}
}

// DefaultValue creates a value holding the attribute's default payload.
func DefaultValue(attr *Attribute) Value {
	return Value{attr: attr}
}

// Attribute returns the descriptor the value is tagged with.
func (v Value) Attribute() *Attribute {
	return v.attr
}

// Payload returns the stored payload, or the attribute's default when no
// payload is stored.
func (v Value) Payload() interface{} {
	if v.payload == nil && v.attr != nil {
		return v.attr.Default()
	}
	return v.payload
}

// IsDefault reports whether the value holds the attribute's default payload.
func (v Value) IsDefault() bool {
	if v.attr == nil {
		return true
	}
	return v.attr.PayloadsEqual(v.Payload(), v.attr.Default())
}

// Equal reports whether two values share an attribute and an equal payload.
func (v Value) Equal(other Value) bool {
	if v.attr != other.attr {
		return false
	}
	if v.attr == nil {
		return true
	}
	return v.attr.PayloadsEqual(v.Payload(), other.Payload())
}

// Blend combines this value with an incoming one under the attribute's blend
// rule and returns the result.
func (v Value) Blend(over Value) Value {
	if v.attr == nil {
		return over
	}
	return Value{attr: v.attr, payload: v.attr.Blend(v.Payload(), over.Payload())}
}

// OwnedValue is a value that owns its attribute reference. Edit commands
// embed owned values so a value remains self-describing outside registry
// context, e.g. while a command is queued for application.
type OwnedValue struct {
	Value
}

// Own wraps a value as an owned value.
func Own(v Value) OwnedValue {
	return OwnedValue{Value: v}
}

// NewOwnedValue creates an owned value directly from a descriptor and payload.
func NewOwnedValue(attr *Attribute, payload interface{}) OwnedValue {
	return OwnedValue{Value: NewValue(attr, payload)}
}

package model

// FindNamed returns the first element in values with the given name.
func FindNamed(values []Value, name string) *Element {
	for _, v := range values {
		if e, ok := v.(*Element); ok && e.name == name {
			return e
		}
	}
	return nil
}

// FindKind returns the first element of the given kind and name in values.
func FindKind(values []Value, kind Kind, name string) *Element {
	for _, v := range values {
		if e, ok := v.(*Element); ok && e.kind == kind && e.name == name {
			return e
		}
	}
	return nil
}

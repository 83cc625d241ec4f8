package domain

// ListFilter narrows key listing and counting queries. Nil fields are
// ignored; all set fields are combined with AND.
type ListFilter struct {
	KeyType        *KeyType
	Status         *KeyStatus
	ConversationID *string
}

// ByKeyType returns a filter matching a single key type.
func ByKeyType(keyType KeyType) ListFilter {
	return ListFilter{KeyType: &keyType}
}

// ByStatus returns a filter matching a single status.
func ByStatus(status KeyStatus) ListFilter {
	return ListFilter{Status: &status}
}

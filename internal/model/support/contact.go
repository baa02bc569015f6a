package support

// Contact identifies the user towards the backend. Only the identity
// resolver constructs non-empty contacts.
type Contact string

// String returns the normalized contact value.
func (c Contact) String() string {
	return string(c)
}

// IsZero reports whether no contact has been accepted yet.
func (c Contact) IsZero() bool {
	return c == ""
}

package domain

// User is a registered member. The id is the identity service user id.
type User struct {
	ID    string
	Name  string
	Email string
	Bio   string
}

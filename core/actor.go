package core

// Actor is the authenticated user performing a mutation. It is recorded in audit fields.
type Actor struct {
	UserID string
	Name   string
	Email  string
	Roles  []string
}

// SystemActor performs background mutations (jobs, CLI).
var SystemActor = Actor{Name: "system"}

func (a Actor) IsSystem() bool {
	return a.UserID == ""
}

// AuditID is the value stored in created_by/updated_by columns; empty for the system.
func (a Actor) AuditID() *string {
	if a.IsSystem() {
		return nil
	}
	id := a.UserID
	return &id
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

package service

// Role is the caller's marketplace role. Identity verification happens in
// the excluded auth layer; services receive an already-verified caller.
type Role string

const (
	RoleFreelancer Role = "freelancer"
	RoleEditor     Role = "editor"
)

// Caller is the pre-verified identity driving an operation.
type Caller struct {
	ID   string
	Role Role
}

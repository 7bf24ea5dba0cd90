package model

// Role is an ordered capability level. Lower strength is stronger:
// admin=1, leader=2, member=3.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleLeader Role = "leader"
	RoleMember Role = "member"
)

// roleUnknown is maximally weak so an unrecognized role is always denied.
const roleUnknown = 999

// Strength returns the numeric level of r (admin=1, leader=2, member=3,
// anything else 999).
func (r Role) Strength() int {
	switch r {
	case RoleAdmin:
		return 1
	case RoleLeader:
		return 2
	case RoleMember:
		return 3
	}
	return roleUnknown
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r.Strength() != roleUnknown
}

// CanAccess reports whether an actor with role r clears the required role.
func (r Role) CanAccess(required Role) bool {
	return r.Strength() <= required.Strength()
}

// CanModifyRole reports whether an actor with role r may modify a target
// with the given role, ignoring the self-modification case (callers allow
// that separately): admin may modify anyone, leader only members.
func (r Role) CanModifyRole(target Role) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleLeader:
		return target == RoleMember
	}
	return false
}

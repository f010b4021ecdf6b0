package model

// Role is the single authority an actor holds.
type Role string

const (
	RoleArtist       Role = "artist"
	RoleTeamLead     Role = "team_lead"
	RoleSupervisor   Role = "supervisor"
	RoleLineProducer Role = "line_producer"
	RoleDataTeam     Role = "data_team"
	RoleITTeam       Role = "it_team"
	RoleAdmin        Role = "admin"
)

var allRoles = []Role{RoleArtist, RoleTeamLead, RoleSupervisor, RoleLineProducer, RoleDataTeam, RoleITTeam, RoleAdmin}

// Valid reports whether r is a declared role.
func (r Role) Valid() bool {
	for _, known := range allRoles {
		if known == r {
			return true
		}
	}
	return false
}

// ParseRole converts user input into a Role.
func ParseRole(v string) (Role, error) {
	r := Role(v)
	if !r.Valid() {
		return "", Validationf("unknown role %q", v)
	}
	return r, nil
}

// Actor identifies whoever performs an action. A nil *Actor is the system.
type Actor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the actor may override stage ownership.
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

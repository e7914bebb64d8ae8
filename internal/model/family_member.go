package model

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStandard Role = "standard"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStandard
}

type Member struct {
	ID        string `json:"id"`
	FamilyID  string `json:"family_id"`
	Name      string `json:"name"`
	Balance   int    `json:"balance"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatar_url"`
	HasPIN    bool   `json:"has_pin"`
	SortOrder int    `json:"sort_order"`
	Version   int64  `json:"version"`
}

func (m *Member) IsAdmin() bool {
	return m != nil && m.Role == RoleAdmin
}

package model

// Family is a tenant: an isolated group of members sharing one catalog and ledger.
type Family struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CurrentMemberID string `json:"current_member_id"`
}

// FamilyState is everything a client needs to render a family.
type FamilyState struct {
	Family          Family   `json:"family"`
	Members         []Member `json:"members"`
	Tasks           []Task   `json:"tasks"`
	Rewards         []Reward `json:"rewards"`
	CurrentMemberID string   `json:"current_member_id"`
}

// Snapshot is the full persisted state of one family.
type Snapshot struct {
	Family       Family        `json:"family"`
	Members      []Member      `json:"members"`
	Tasks        []Task        `json:"tasks"`
	Rewards      []Reward      `json:"rewards"`
	Transactions []Transaction `json:"transactions"`
}

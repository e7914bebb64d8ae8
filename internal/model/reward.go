package model

type RewardType string

const (
	RewardPhysical  RewardType = "physical"
	RewardPrivilege RewardType = "privilege"
)

func (t RewardType) Valid() bool {
	return t == RewardPhysical || t == RewardPrivilege
}

type RewardStatus string

const (
	StatusActive   RewardStatus = "active"
	StatusPending  RewardStatus = "pending"
	StatusRejected RewardStatus = "rejected"
)

func (s RewardStatus) Valid() bool {
	return s == StatusActive || s == StatusPending || s == StatusRejected
}

type Reward struct {
	ID          string       `json:"id"`
	FamilyID    string       `json:"family_id"`
	Title       string       `json:"title"`
	Points      int          `json:"points"`
	Type        RewardType   `json:"type"`
	ImageURL    string       `json:"image_url"`
	Status      RewardStatus `json:"status"`
	RequestedBy string       `json:"requested_by,omitempty"`
	SortOrder   int          `json:"sort_order"`
}

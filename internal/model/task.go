package model

type TaskCategory string

const (
	CategoryLearning   TaskCategory = "learning"
	CategoryChores     TaskCategory = "chores"
	CategoryDiscipline TaskCategory = "discipline"
	CategoryPenalty    TaskCategory = "penalty"
	CategoryReward     TaskCategory = "reward"
)

func (c TaskCategory) Valid() bool {
	switch c {
	case CategoryLearning, CategoryChores, CategoryDiscipline, CategoryPenalty, CategoryReward:
		return true
	}
	return false
}

// Task is a catalog entry that drives earn and penalty transactions.
// Frequency is a display label; it never limits how often a task is triggered.
type Task struct {
	ID          string       `json:"id"`
	FamilyID    string       `json:"family_id"`
	Category    TaskCategory `json:"category"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Points      int          `json:"points"`
	Frequency   string       `json:"frequency"`
	ImageURL    string       `json:"image_url"`
	SortOrder   int          `json:"sort_order"`
}

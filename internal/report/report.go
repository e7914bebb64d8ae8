// Package report renders a printable HTML overview of a family.
package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

// HistoryLimit is how many recent transactions are listed per member.
const HistoryLimit = 10

//go:embed report.html.tmpl
var source string

var tmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	// Only a sign and digits, so it needs no escaping.
	"signed": func(n int) template.HTML { return template.HTML(fmt.Sprintf("%+d", n)) },
	"date":   func(t time.Time) string { return t.Format("2006-01-02 15:04") },
}).Parse(source))

var categoryOrder = []model.TaskCategory{
	model.CategoryLearning,
	model.CategoryChores,
	model.CategoryDiscipline,
	model.CategoryPenalty,
	model.CategoryReward,
}

var categoryLabels = map[model.TaskCategory]string{
	model.CategoryLearning:   "Learning",
	model.CategoryChores:     "Chores",
	model.CategoryDiscipline: "Discipline",
	model.CategoryPenalty:    "Penalties",
	model.CategoryReward:     "Bonus",
}

type memberView struct {
	model.Member
	Recent []model.Transaction
}

type categoryView struct {
	Label string
	Tasks []model.Task
}

type view struct {
	Family      model.Family
	GeneratedAt time.Time
	TotalPoints int
	Members     []memberView
	Categories  []categoryView
	Rewards     []model.Reward
	Pending     []model.Reward
}

func build(snap model.Snapshot, generatedAt time.Time) view {
	v := view{Family: snap.Family, GeneratedAt: generatedAt}

	byMember := make(map[string][]model.Transaction)
	for _, t := range snap.Transactions {
		byMember[t.MemberID] = append(byMember[t.MemberID], t)
	}
	for _, m := range snap.Members {
		txs := byMember[m.ID]
		sort.SliceStable(txs, func(i, j int) bool { return txs[i].Timestamp.After(txs[j].Timestamp) })
		if len(txs) > HistoryLimit {
			txs = txs[:HistoryLimit]
		}
		v.Members = append(v.Members, memberView{Member: m, Recent: txs})
		v.TotalPoints += m.Balance
	}

	byCategory := make(map[model.TaskCategory][]model.Task)
	for _, t := range snap.Tasks {
		byCategory[t.Category] = append(byCategory[t.Category], t)
	}
	for _, c := range categoryOrder {
		if tasks := byCategory[c]; len(tasks) > 0 {
			v.Categories = append(v.Categories, categoryView{Label: categoryLabels[c], Tasks: tasks})
		}
	}

	for _, r := range snap.Rewards {
		switch r.Status {
		case model.StatusActive, "":
			v.Rewards = append(v.Rewards, r)
		case model.StatusPending:
			v.Pending = append(v.Pending, r)
		}
	}
	return v
}

// Render writes the report for snap. It reads nothing but its arguments.
func Render(w io.Writer, snap model.Snapshot, generatedAt time.Time) error {
	if err := tmpl.Execute(w, build(snap, generatedAt)); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

package catalog

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ahkjxy/family-points-bank-sub000/internal/feed"
	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTasks struct{ mock.Mock }

func (m *mockTasks) Create(ctx context.Context, t model.Task) (*model.Task, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(*model.Task), args.Error(1)
}

func (m *mockTasks) Get(ctx context.Context, familyID, id string) (*model.Task, error) {
	args := m.Called(ctx, familyID, id)
	return args.Get(0).(*model.Task), args.Error(1)
}

func (m *mockTasks) List(ctx context.Context, familyID string) ([]model.Task, error) {
	args := m.Called(ctx, familyID)
	return args.Get(0).([]model.Task), args.Error(1)
}

func (m *mockTasks) Update(ctx context.Context, t model.Task) (*model.Task, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(*model.Task), args.Error(1)
}

func (m *mockTasks) Delete(ctx context.Context, familyID, id string) error {
	return m.Called(ctx, familyID, id).Error(0)
}

type mockRewards struct{ mock.Mock }

func (m *mockRewards) Create(ctx context.Context, r model.Reward) (*model.Reward, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(*model.Reward), args.Error(1)
}

func (m *mockRewards) Get(ctx context.Context, familyID, id string) (*model.Reward, error) {
	args := m.Called(ctx, familyID, id)
	return args.Get(0).(*model.Reward), args.Error(1)
}

func (m *mockRewards) List(ctx context.Context, familyID string) ([]model.Reward, error) {
	args := m.Called(ctx, familyID)
	return args.Get(0).([]model.Reward), args.Error(1)
}

func (m *mockRewards) Update(ctx context.Context, r model.Reward) (*model.Reward, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(*model.Reward), args.Error(1)
}

func (m *mockRewards) SetStatus(ctx context.Context, familyID, id string, status model.RewardStatus) (*model.Reward, error) {
	args := m.Called(ctx, familyID, id, status)
	return args.Get(0).(*model.Reward), args.Error(1)
}

func (m *mockRewards) Delete(ctx context.Context, familyID, id string) error {
	return m.Called(ctx, familyID, id).Error(0)
}

type members map[string]*model.Member

func (ms members) Get(_ context.Context, familyID, id string) (*model.Member, error) {
	m, ok := ms[id]
	if !ok || m.FamilyID != familyID {
		return nil, nil
	}
	return m, nil
}

type recorder struct{ events []feed.Event }

func (r *recorder) Publish(_ context.Context, e feed.Event) error {
	r.events = append(r.events, e)
	return nil
}

func setup(t *testing.T) (*Manager, *mockTasks, *mockRewards, *recorder) {
	t.Helper()
	tasks, rewards, rec := &mockTasks{}, &mockRewards{}, &recorder{}
	ms := members{
		"admin": {ID: "admin", FamilyID: "f1", Name: "Mom", Role: model.RoleAdmin},
		"kid":   {ID: "kid", FamilyID: "f1", Name: "Ann", Role: model.RoleStandard},
	}
	t.Cleanup(func() {
		tasks.AssertExpectations(t)
		rewards.AssertExpectations(t)
	})
	return NewManager(tasks, rewards, ms, rec, slog.New(slog.NewTextHandler(io.Discard, nil))), tasks, rewards, rec
}

func TestCreateTask(t *testing.T) {
	mgr, tasks, _, rec := setup(t)

	tasks.On("Create", mock.Anything, mock.MatchedBy(func(task model.Task) bool {
		return task.FamilyID == "f1" && task.Title == "Sweep" && task.ID != ""
	})).Return(&model.Task{ID: "t1", FamilyID: "f1", Title: "Sweep"}, nil)

	task, err := mgr.CreateTask(context.Background(), "f1", "admin", TaskInput{
		Category: model.CategoryChores, Title: "  Sweep ", Points: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", task.ID)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "task_created", rec.events[0].Type)
}

func TestCreateTaskRules(t *testing.T) {
	mgr, _, _, rec := setup(t)
	ctx := context.Background()

	_, err := mgr.CreateTask(ctx, "f1", "kid", TaskInput{Category: model.CategoryChores, Title: "Sweep", Points: 1})
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	_, err = mgr.CreateTask(ctx, "f1", "admin", TaskInput{Category: "sports", Title: "Run", Points: 1})
	assert.ErrorIs(t, err, ledger.ErrInvalid)

	_, err = mgr.CreateTask(ctx, "f1", "admin", TaskInput{Category: model.CategoryChores, Title: " ", Points: 1})
	assert.ErrorIs(t, err, ledger.ErrInvalid)

	_, err = mgr.CreateTask(ctx, "f1", "admin", TaskInput{Category: model.CategoryChores, Title: "Sweep"})
	assert.ErrorIs(t, err, ledger.ErrInvalid)

	_, err = mgr.CreateTask(ctx, "f2", "admin", TaskInput{Category: model.CategoryChores, Title: "Sweep", Points: 1})
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	assert.Empty(t, rec.events)
}

func TestDeleteTaskNotFound(t *testing.T) {
	mgr, tasks, _, rec := setup(t)
	tasks.On("Delete", mock.Anything, "f1", "nope").Return(ledger.E(ledger.ErrNotFound, "delete task", "task not found"))

	err := mgr.DeleteTask(context.Background(), "f1", "admin", "nope")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Empty(t, rec.events)
}

func TestListTasksNeverNil(t *testing.T) {
	mgr, tasks, _, _ := setup(t)
	tasks.On("List", mock.Anything, "f1").Return([]model.Task(nil), nil)

	list, err := mgr.ListTasks(context.Background(), "f1")
	require.NoError(t, err)
	assert.NotNil(t, list)
}

func TestCreateRewardValidation(t *testing.T) {
	mgr, _, _, _ := setup(t)
	ctx := context.Background()

	_, err := mgr.CreateReward(ctx, "f1", "admin", RewardInput{Title: "Toy", Points: 0, Type: model.RewardPhysical})
	assert.ErrorIs(t, err, ledger.ErrInvalid)

	_, err = mgr.CreateReward(ctx, "f1", "admin", RewardInput{Title: "Toy", Points: 5, Type: "cash"})
	assert.ErrorIs(t, err, ledger.ErrInvalid)

	_, err = mgr.CreateReward(ctx, "f1", "kid", RewardInput{Title: "Toy", Points: 5, Type: model.RewardPhysical})
	assert.ErrorIs(t, err, ledger.ErrForbidden)
}

func TestWishlistFlow(t *testing.T) {
	mgr, _, rewards, rec := setup(t)
	ctx := context.Background()

	rewards.On("Create", mock.Anything, mock.MatchedBy(func(r model.Reward) bool {
		return r.Status == model.StatusPending && r.RequestedBy == "kid"
	})).Return(&model.Reward{ID: "r1", FamilyID: "f1", Status: model.StatusPending, RequestedBy: "kid"}, nil)
	rewards.On("SetStatus", mock.Anything, "f1", "r1", model.StatusRejected).
		Return(&model.Reward{ID: "r1", FamilyID: "f1", Status: model.StatusRejected}, nil)

	wish, err := mgr.RequestReward(ctx, "f1", "kid", RewardInput{Title: "Zoo trip", Points: 40, Type: model.RewardPrivilege})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, wish.Status)

	_, err = mgr.ApproveReward(ctx, "f1", "kid", "r1")
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	rejected, err := mgr.RejectReward(ctx, "f1", "admin", "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)

	require.Len(t, rec.events, 2)
	assert.Equal(t, "reward_created", rec.events[0].Type)
	assert.Equal(t, "reward_updated", rec.events[1].Type)
}

func TestApproveReward(t *testing.T) {
	mgr, _, rewards, _ := setup(t)
	rewards.On("SetStatus", mock.Anything, "f1", "r1", model.StatusActive).
		Return(&model.Reward{ID: "r1", Status: model.StatusActive}, nil)

	r, err := mgr.ApproveReward(context.Background(), "f1", "admin", "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, r.Status)
}

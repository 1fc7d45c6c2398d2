package services

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/mock"

	"github.com/irfndi/volume-engine/internal/models"
	"github.com/irfndi/volume-engine/internal/volume"
)

// MockSignalStore implements SignalStore for testing within the services package
type MockSignalStore struct {
	mock.Mock
}

func (m *MockSignalStore) GetCreatorSignals(ctx context.Context, creatorID string, asOf time.Time) (volume.CreatorSignals, error) {
	args := m.Called(ctx, creatorID, asOf)
	return args.Get(0).(volume.CreatorSignals), args.Error(1)
}

// MockPlanStore implements PlanStore
type MockPlanStore struct {
	mock.Mock
}

func (m *MockPlanStore) SavePlan(ctx context.Context, plan *volume.VolumePlan) error {
	return m.Called(ctx, plan).Error(0)
}

func (m *MockPlanStore) LatestPlan(ctx context.Context, creatorID string) (*volume.VolumePlan, error) {
	args := m.Called(ctx, creatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*volume.VolumePlan), args.Error(1)
}

func (m *MockPlanStore) GetPlan(ctx context.Context, predictionID string) (*volume.VolumePlan, error) {
	args := m.Called(ctx, predictionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*volume.VolumePlan), args.Error(1)
}

func (m *MockPlanStore) PreviousPlan(ctx context.Context, creatorID string, asOf time.Time) (*volume.PreviousPlan, error) {
	args := m.Called(ctx, creatorID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*volume.PreviousPlan), args.Error(1)
}

func (m *MockPlanStore) CaptionInventory(ctx context.Context, creatorID string) (volume.CaptionInventory, error) {
	args := m.Called(ctx, creatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(volume.CaptionInventory), args.Error(1)
}

func (m *MockPlanStore) RecordOutcome(ctx context.Context, outcome models.PredictionOutcome) (*models.PredictionOutcome, error) {
	args := m.Called(ctx, outcome)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PredictionOutcome), args.Error(1)
}

// MockPlanCache implements PlanCache
type MockPlanCache struct {
	mock.Mock
}

func (m *MockPlanCache) GetPrevious(ctx context.Context, creatorID string, asOf time.Time) (*volume.PreviousPlan, bool) {
	args := m.Called(ctx, creatorID, asOf)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*volume.PreviousPlan), args.Bool(1)
}

func (m *MockPlanCache) SetPrevious(ctx context.Context, creatorID string, prev *volume.PreviousPlan, computedAt time.Time) error {
	return m.Called(ctx, creatorID, prev, computedAt).Error(0)
}

func (m *MockPlanCache) GetInventory(ctx context.Context, creatorID string) (volume.CaptionInventory, bool) {
	args := m.Called(ctx, creatorID)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(volume.CaptionInventory), args.Bool(1)
}

func (m *MockPlanCache) SetInventory(ctx context.Context, creatorID string, inventory volume.CaptionInventory) error {
	return m.Called(ctx, creatorID, inventory).Error(0)
}

// MockNotifier implements Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyShortfall(ctx context.Context, plan *volume.VolumePlan) error {
	return m.Called(ctx, plan).Error(0)
}

// MockMessageSender implements MessageSender
type MockMessageSender struct {
	mock.Mock
}

func (m *MockMessageSender) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tgmodels.Message), args.Error(1)
}

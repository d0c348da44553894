package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	simulation "solarflow-cloud/internal/simulation/domain"
	simmemory "solarflow-cloud/internal/simulation/infrastructure/memory"
	subscription "solarflow-cloud/internal/subscription/domain"
	submemory "solarflow-cloud/internal/subscription/infrastructure/memory"
)

func newTestService(t *testing.T) (*SimulationService, *submemory.SubscriptionStore, *Scheduler) {
	t.Helper()
	subs := submemory.NewSubscriptionStore()
	tracker, err := NewBatteryStateTracker(simmemory.NewReadingStore())
	require.NoError(t, err)
	scheduler := newTestScheduler(t, newOverlapTicker(0))
	service, err := NewSimulationService(subs, scheduler, tracker)
	require.NoError(t, err)
	return service, subs, scheduler
}

func TestServiceStartsActiveSubscription(t *testing.T) {
	service, subs, scheduler := newTestService(t)
	defer scheduler.StopAll()
	ctx := context.Background()
	require.NoError(t, subs.Save(ctx, subscription.Subscription{
		SubscriberID:       "sub-1",
		MonthlyFee:         1299,
		SolarCapacityKW:    3,
		BatteryCapacityKWh: 5,
		Status:             subscription.StatusActive,
	}))

	status, err := service.StartForSubscriber(ctx, "sub-1")
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, 3.0, status.Profile.SolarCapacityKW)
	assert.Equal(t, 5.0, status.Profile.BatteryCapacityKWh)

	view, err := service.Status(ctx, "sub-1")
	require.NoError(t, err)
	assert.True(t, view.Running)

	assert.True(t, service.StopForSubscriber("sub-1"))
	assert.Eventually(t, func() bool { return !scheduler.Running("sub-1") }, time.Second, time.Millisecond)
}

func TestServiceRejectsMissingAndInactive(t *testing.T) {
	service, subs, scheduler := newTestService(t)
	defer scheduler.StopAll()
	ctx := context.Background()

	_, err := service.StartForSubscriber(ctx, "ghost")
	assert.ErrorIs(t, err, subscription.ErrNotFound)

	require.NoError(t, subs.Save(ctx, subscription.Subscription{SubscriberID: "sub-2", Status: subscription.StatusSuspended}))
	_, err = service.StartForSubscriber(ctx, "sub-2")
	assert.ErrorIs(t, err, simulation.ErrSubscriptionInactive)
	assert.False(t, scheduler.Running("sub-2"))
}

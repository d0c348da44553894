package application

import (
	"context"
	"errors"
	"fmt"

	simulation "solarflow-cloud/internal/simulation/domain"
	subscription "solarflow-cloud/internal/subscription/domain"
)

// SimulationService starts and stops live simulation for subscribers.
type SimulationService struct {
	subscriptions subscription.Store
	scheduler     *Scheduler
	tracker       *BatteryStateTracker
}

// NewSimulationService constructs the service.
func NewSimulationService(subscriptions subscription.Store, scheduler *Scheduler, tracker *BatteryStateTracker) (*SimulationService, error) {
	if subscriptions == nil {
		return nil, errors.New("simulation service: nil subscription store")
	}
	if scheduler == nil {
		return nil, errors.New("simulation service: nil scheduler")
	}
	if tracker == nil {
		return nil, errors.New("simulation service: nil tracker")
	}
	return &SimulationService{
		subscriptions: subscriptions,
		scheduler:     scheduler,
		tracker:       tracker,
	}, nil
}

// ProfileFromSubscription maps the equipment of a subscription into a profile.
func ProfileFromSubscription(sub subscription.Subscription) simulation.SubscriberEnergyProfile {
	return simulation.SubscriberEnergyProfile{
		SubscriberID:       sub.SubscriberID,
		SolarCapacityKW:    sub.SolarCapacityKW,
		BatteryCapacityKWh: sub.BatteryCapacityKWh,
	}
}

// StartForSubscriber loads the subscription and starts its loop.
func (s *SimulationService) StartForSubscriber(ctx context.Context, subscriberID string) (LoopStatus, error) {
	if subscriberID == "" {
		return LoopStatus{}, simulation.ErrEmptySubscriberID
	}
	sub, err := s.subscriptions.Get(ctx, subscriberID)
	if err != nil {
		return LoopStatus{}, fmt.Errorf("load subscription: %w", err)
	}
	if !sub.Active() {
		return LoopStatus{}, simulation.ErrSubscriptionInactive
	}
	if err := s.scheduler.Start(ProfileFromSubscription(*sub)); err != nil {
		return LoopStatus{}, err
	}
	return s.scheduler.Status(subscriberID), nil
}

// StopForSubscriber stops the loop. It reports whether a loop was running.
func (s *SimulationService) StopForSubscriber(subscriberID string) bool {
	return s.scheduler.Stop(subscriberID)
}

// SimulationStatus is the live view of one subscriber.
type SimulationStatus struct {
	LoopStatus
	Battery simulation.BatteryState `json:"battery"`
}

// Status returns loop state and the last known battery level.
func (s *SimulationService) Status(ctx context.Context, subscriberID string) (SimulationStatus, error) {
	if subscriberID == "" {
		return SimulationStatus{}, simulation.ErrEmptySubscriberID
	}
	battery, err := s.tracker.State(ctx, subscriberID)
	if err != nil {
		return SimulationStatus{}, err
	}
	return SimulationStatus{
		LoopStatus: s.scheduler.Status(subscriberID),
		Battery:    battery,
	}, nil
}

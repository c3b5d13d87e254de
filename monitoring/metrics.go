package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_created_total",
			Help: "Calls created per restaurant",
		},
		[]string{"restaurant_id"},
	)

	callTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_transitions_total",
			Help: "Accepted call status transitions",
		},
		[]string{"to_status"},
	)

	transitionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "call_transition_conflicts_total",
			Help: "Transitions rejected because another actor won the race",
		},
	)

	sweepTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_missed_total",
			Help: "Pending calls the sweeper declared missed",
		},
	)

	dispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_notifications_total",
			Help: "Push notification delivery outcomes",
		},
		[]string{"outcome"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Currently live realtime connection managers",
		},
	)

	connectionStates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connection_states_total",
			Help: "Connection manager state entries",
		},
		[]string{"state"},
	)
)

func TrackCallCreated(restaurantID string) { callsCreated.WithLabelValues(restaurantID).Inc() }

func TrackTransition(toStatus string) { callTransitions.WithLabelValues(toStatus).Inc() }

func TrackConflict() { transitionConflicts.Inc() }

func TrackSwept(n int) { sweepTransitions.Add(float64(n)) }

func TrackDispatch(outcome string, n int) { dispatchOutcomes.WithLabelValues(outcome).Add(float64(n)) }

func TrackConnectionOpen() { activeConnections.Inc() }

func TrackConnectionClosed() { activeConnections.Dec() }

func TrackConnectionState(state string) { connectionStates.WithLabelValues(state).Inc() }

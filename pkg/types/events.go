package types

import "time"

// StatusEventType identifies the kind of push notification delivered to
// status subscribers.
type StatusEventType string

const (
	EventProviderStatus StatusEventType = "provider_status"
	EventModelUpdate    StatusEventType = "model_update"
	EventCostAlert      StatusEventType = "cost_alert"
)

// StatusEvent is a one-way notification pushed to subscribers such as
// dashboards. The core never reads state back through this channel.
type StatusEvent struct {
	Type      StatusEventType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      map[string]any  `json:"data"`
}

// BudgetLevel identifies which budget period a cost alert refers to.
type BudgetLevel string

const (
	BudgetDaily   BudgetLevel = "daily"
	BudgetMonthly BudgetLevel = "monthly"
)

// CostAlert is emitted once per threshold crossing within a budget
// period.
type CostAlert struct {
	Provider  string      `json:"provider"`
	Level     BudgetLevel `json:"level"`
	Threshold float64     `json:"threshold"`
	Total     float64     `json:"total"`
	Timestamp time.Time   `json:"timestamp"`
}

// Package cost maintains the per-provider spend ledger and budget
// alerting. Budget breaches are advisory: they notify subscribers but
// never block a call unless the caller installed a rejecting policy.
package cost

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vitalyst/enrich/internal/tokenizer"
	"github.com/vitalyst/enrich/pkg/provider"
	"github.com/vitalyst/enrich/pkg/types"
)

// Budgets holds the advisory spend thresholds, USD.
type Budgets struct {
	Daily   float64 `yaml:"daily" json:"daily"`
	Monthly float64 `yaml:"monthly" json:"monthly"`
}

// AlertFunc receives budget alerts. Each alert fires exactly once per
// threshold crossing within its period.
type AlertFunc func(types.CostAlert)

// Snapshot is a read-only view of one provider's ledger.
type Snapshot struct {
	Provider     string  `json:"provider"`
	DailyTotal   float64 `json:"daily_total"`
	MonthlyTotal float64 `json:"monthly_total"`
	Voided       float64 `json:"voided"`
	Requests     int64   `json:"requests"`
}

type ledger struct {
	cfg provider.CostConfig

	dailyTotal   float64
	monthlyTotal float64
	voided       float64
	requests     int64

	dayKey   string
	monthKey string

	dailyAlerted   bool
	monthlyAlerted bool
}

// Manager owns all ledgers. Counter mutations are serialized per
// manager; different providers' updates do not order relative to each
// other beyond that.
type Manager struct {
	mu      sync.Mutex
	ledgers map[string]*ledger
	budgets Budgets
	alerts  []AlertFunc
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager creates a cost manager with the given budget thresholds.
func NewManager(budgets Budgets, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		ledgers: make(map[string]*ledger),
		budgets: budgets,
		logger:  logger,
		now:     time.Now,
	}
}

// Configure installs the cost table for a provider.
func (m *Manager) Configure(name string, cfg provider.CostConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.getOrCreate(name)
	l.cfg = cfg
}

// Subscribe registers a budget alert subscriber.
func (m *Manager) Subscribe(fn AlertFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, fn)
}

// Estimate predicts the cost of sending renderedPrompt to a provider:
// tokenEstimate*costPerToken + costPerRequest. The token estimate is the
// deterministic heuristic from the tokenizer package.
func (m *Manager) Estimate(name, renderedPrompt string) float64 {
	m.mu.Lock()
	l := m.getOrCreate(name)
	cfg := l.cfg
	m.mu.Unlock()

	tokens := tokenizer.Estimate(renderedPrompt)
	return float64(tokens)*cfg.CostPerToken + cfg.CostPerRequest
}

// ActualCost prices a settled call from its true token usage.
func (m *Manager) ActualCost(name string, totalTokens int) float64 {
	m.mu.Lock()
	l := m.getOrCreate(name)
	cfg := l.cfg
	m.mu.Unlock()
	return float64(totalTokens)*cfg.CostPerToken + cfg.CostPerRequest
}

// Track adds a charge to the running ledger and fires budget alerts for
// any threshold the new total just crossed. The running total within a
// period only grows; period boundaries reset it atomically.
func (m *Manager) Track(name string, amount float64) {
	if amount < 0 {
		amount = 0
	}

	var fired []types.CostAlert

	m.mu.Lock()
	l := m.getOrCreate(name)
	m.rollPeriods(l)

	l.dailyTotal += amount
	l.monthlyTotal += amount
	l.requests++

	if m.budgets.Daily > 0 && !l.dailyAlerted && l.dailyTotal >= m.budgets.Daily {
		l.dailyAlerted = true
		fired = append(fired, types.CostAlert{
			Provider: name, Level: types.BudgetDaily,
			Threshold: m.budgets.Daily, Total: l.dailyTotal,
			Timestamp: m.now().UTC(),
		})
	}
	if m.budgets.Monthly > 0 && !l.monthlyAlerted && l.monthlyTotal >= m.budgets.Monthly {
		l.monthlyAlerted = true
		fired = append(fired, types.CostAlert{
			Provider: name, Level: types.BudgetMonthly,
			Threshold: m.budgets.Monthly, Total: l.monthlyTotal,
			Timestamp: m.now().UTC(),
		})
	}
	subs := make([]AlertFunc, len(m.alerts))
	copy(subs, m.alerts)
	m.mu.Unlock()

	for _, alert := range fired {
		m.logger.Warn("budget threshold crossed",
			"provider", alert.Provider, "level", string(alert.Level),
			"threshold", alert.Threshold, "total", alert.Total)
		for _, fn := range subs {
			fn(alert)
		}
	}
}

// Settle replaces a previously tracked estimate with the true post-call
// cost. When the actual exceeds the estimate, the difference is charged;
// when it falls short, the surplus is recorded as a void credit so the
// period total stays monotonic.
func (m *Manager) Settle(name string, estimate, actual float64) {
	delta := actual - estimate
	if delta > 0 {
		m.Track(name, delta)
		return
	}
	if delta < 0 {
		m.credit(name, -delta)
	}
}

// Void marks a tracked estimate as cancelled. The charge stays in the
// period total (monotonicity) but is reported separately so downstream
// accounting can exclude it.
func (m *Manager) Void(name string, estimate float64) {
	if estimate > 0 {
		m.credit(name, estimate)
	}
}

func (m *Manager) credit(name string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.getOrCreate(name)
	m.rollPeriods(l)
	l.voided += amount
}

// Snapshot returns the ledger state for one provider.
func (m *Manager) Snapshot(name string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[name]
	if !ok {
		return Snapshot{}, false
	}
	m.rollPeriods(l)
	return Snapshot{
		Provider:     name,
		DailyTotal:   l.dailyTotal,
		MonthlyTotal: l.monthlyTotal,
		Voided:       l.voided,
		Requests:     l.requests,
	}, true
}

// Total returns the provider's running daily total, used by provider
// selection scoring. Unknown providers score zero spend.
func (m *Manager) Total(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[name]
	if !ok {
		return 0
	}
	m.rollPeriods(l)
	return l.dailyTotal
}

func (m *Manager) getOrCreate(name string) *ledger {
	l, ok := m.ledgers[name]
	if !ok {
		l = &ledger{}
		m.initPeriods(l)
		m.ledgers[name] = l
	}
	return l
}

func (m *Manager) initPeriods(l *ledger) {
	now := m.now().UTC()
	l.dayKey = now.Format("2006-01-02")
	l.monthKey = now.Format("2006-01")
}

// rollPeriods resets period totals and alert latches when the calendar
// period has changed since the last mutation. Caller holds m.mu.
func (m *Manager) rollPeriods(l *ledger) {
	now := m.now().UTC()

	if day := now.Format("2006-01-02"); day != l.dayKey {
		l.dayKey = day
		l.dailyTotal = 0
		l.dailyAlerted = false
	}
	if month := now.Format("2006-01"); month != l.monthKey {
		l.monthKey = month
		l.monthlyTotal = 0
		l.monthlyAlerted = false
	}
}

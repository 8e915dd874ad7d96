package approval

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fert-price-monitor/internal/adjust"
)

var (
	ErrWorkflowNotFound = errors.New("approval workflow not found")
	ErrAlreadyResolved  = errors.New("approval workflow already resolved")
	ErrApprovalExpired  = errors.New("approval workflow expired")
)

const (
	defaultWindow           = 24 * time.Hour
	defaultReminderLead     = 4 * time.Hour
	defaultReminderInterval = time.Hour
)

// Workflow tracks human sign-off for one strategy modification. Status
// mirrors the modification's approval status at all times.
type Workflow struct {
	ID            string
	Modification  *adjust.Modification
	Approver      string
	Deadline      time.Time
	Status        adjust.ApprovalStatus
	Comments      []string
	RemindersSent int
	CreatedAt     time.Time
	ResolvedAt    *time.Time

	lastReminder time.Time
}

// Options configures the approval manager.
type Options struct {
	// Window is how long an approval stays open before expiring.
	Window time.Duration
	// ReminderLead is how close to the deadline reminders start.
	ReminderLead time.Duration
	// ReminderInterval is the minimum spacing between reminders for one
	// workflow.
	ReminderInterval time.Duration
	Logger           zerolog.Logger
}

// Manager owns all approval state. A modification's approval fields are
// mutated here and nowhere else, always under the manager's lock.
type Manager struct {
	mu    sync.Mutex
	items map[string]*Workflow
	byMod map[string]string

	window           time.Duration
	reminderLead     time.Duration
	reminderInterval time.Duration
	logger           zerolog.Logger
}

// NewManager constructs a Manager, applying defaults for unset options.
func NewManager(opts Options) *Manager {
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.ReminderLead <= 0 {
		opts.ReminderLead = defaultReminderLead
	}
	if opts.ReminderInterval <= 0 {
		opts.ReminderInterval = defaultReminderInterval
	}
	return &Manager{
		items:            make(map[string]*Workflow),
		byMod:            make(map[string]string),
		window:           opts.Window,
		reminderLead:     opts.ReminderLead,
		reminderInterval: opts.ReminderInterval,
		logger:           opts.Logger.With().Str("component", "approval").Logger(),
	}
}

// Create opens a workflow for a modification that requires approval. The
// deadline is now plus the configured window.
func (m *Manager) Create(mod *adjust.Modification, approver string, now time.Time) (Workflow, error) {
	if mod == nil {
		return Workflow{}, fmt.Errorf("modification is nil")
	}
	if !mod.RequiresApproval {
		return Workflow{}, fmt.Errorf("modification %s does not require approval", mod.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byMod[mod.ID]; ok {
		return Workflow{}, fmt.Errorf("modification %s already has workflow %s", mod.ID, existing)
	}

	w := &Workflow{
		ID:           uuid.NewString(),
		Modification: mod,
		Approver:     approver,
		Deadline:     now.Add(m.window),
		Status:       adjust.ApprovalPending,
		CreatedAt:    now,
	}
	mod.ApprovalStatus = adjust.ApprovalPending
	m.items[w.ID] = w
	m.byMod[mod.ID] = w.ID

	m.logger.Info().
		Str("workflow_id", w.ID).
		Str("modification_id", mod.ID).
		Time("deadline", w.Deadline).
		Msg("approval workflow opened")
	return w.snapshot(), nil
}

// Approve resolves a workflow positively and records the approver on the
// modification. Expired workflows cannot be approved.
func (m *Manager) Approve(workflowID, approver, comment string, now time.Time) (Workflow, error) {
	return m.resolve(workflowID, approver, comment, adjust.ApprovalApproved, now)
}

// Reject resolves a workflow negatively.
func (m *Manager) Reject(workflowID, approver, comment string, now time.Time) (Workflow, error) {
	return m.resolve(workflowID, approver, comment, adjust.ApprovalRejected, now)
}

func (m *Manager) resolve(workflowID, approver, comment string, status adjust.ApprovalStatus, now time.Time) (Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.items[workflowID]
	if !ok {
		return Workflow{}, ErrWorkflowNotFound
	}
	m.expireLocked(w, now)
	if w.Status == adjust.ApprovalExpired {
		return w.snapshot(), ErrApprovalExpired
	}
	if w.Status != adjust.ApprovalPending {
		return w.snapshot(), ErrAlreadyResolved
	}

	w.Status = status
	w.Modification.ApprovalStatus = status
	if status == adjust.ApprovalApproved {
		w.Modification.ApprovedBy = &approver
	}
	if approver != "" {
		w.Approver = approver
	}
	if comment != "" {
		w.Comments = append(w.Comments, comment)
	}
	resolved := now
	w.ResolvedAt = &resolved

	m.logger.Info().
		Str("workflow_id", w.ID).
		Str("modification_id", w.Modification.ID).
		Str("status", string(status)).
		Msg("approval workflow resolved")
	return w.snapshot(), nil
}

// Get returns the workflow by id. Expiry is applied lazily on read.
func (m *Manager) Get(workflowID string, now time.Time) (Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.items[workflowID]
	if !ok {
		return Workflow{}, ErrWorkflowNotFound
	}
	m.expireLocked(w, now)
	return w.snapshot(), nil
}

// GetByModification returns the workflow attached to a modification id.
func (m *Manager) GetByModification(modID string, now time.Time) (Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byMod[modID]
	if !ok {
		return Workflow{}, ErrWorkflowNotFound
	}
	w := m.items[id]
	m.expireLocked(w, now)
	return w.snapshot(), nil
}

// List returns all workflows ordered by creation time, oldest first.
func (m *Manager) List(now time.Time) []Workflow {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Workflow, 0, len(m.items))
	for _, w := range m.items {
		m.expireLocked(w, now)
		out = append(out, w.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Pending returns the workflows still awaiting a decision.
func (m *Manager) Pending(now time.Time) []Workflow {
	all := m.List(now)
	out := all[:0]
	for _, w := range all {
		if w.Status == adjust.ApprovalPending {
			out = append(out, w)
		}
	}
	return out
}

// ExpireOverdue transitions every pending workflow past its deadline to
// expired and reports how many changed. Used by the maintenance sweep; the
// same transition also happens lazily on any read.
func (m *Manager) ExpireOverdue(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for _, w := range m.items {
		if w.Status == adjust.ApprovalPending && m.expireLocked(w, now) {
			expired++
		}
	}
	return expired
}

// DueForReminder returns pending workflows close to their deadline and
// counts a reminder against each. Spacing between reminders for the same
// workflow is at least the configured interval.
func (m *Manager) DueForReminder(now time.Time) []Workflow {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []Workflow
	for _, w := range m.items {
		m.expireLocked(w, now)
		if w.Status != adjust.ApprovalPending {
			continue
		}
		if w.Deadline.Sub(now) > m.reminderLead {
			continue
		}
		if !w.lastReminder.IsZero() && now.Sub(w.lastReminder) < m.reminderInterval {
			continue
		}
		w.RemindersSent++
		w.lastReminder = now
		due = append(due, w.snapshot())
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Deadline.Before(due[j].Deadline) })
	return due
}

// expireLocked applies the deadline transition; callers hold m.mu.
func (m *Manager) expireLocked(w *Workflow, now time.Time) bool {
	if w.Status != adjust.ApprovalPending || !now.After(w.Deadline) {
		return false
	}
	w.Status = adjust.ApprovalExpired
	w.Modification.ApprovalStatus = adjust.ApprovalExpired
	resolved := w.Deadline
	w.ResolvedAt = &resolved

	m.logger.Warn().
		Str("workflow_id", w.ID).
		Str("modification_id", w.Modification.ID).
		Msg("approval workflow expired without a decision")
	return true
}

// snapshot copies the workflow so callers cannot mutate manager state. The
// modification pointer is intentionally shared; its approval fields only
// change under the manager's lock.
func (w *Workflow) snapshot() Workflow {
	out := *w
	out.Comments = append([]string(nil), w.Comments...)
	return out
}

package core

import (
	"fmt"
	"log"

	"github.com/AlexanderModestov/aiassistant/internal/knowledge"
	"github.com/AlexanderModestov/aiassistant/internal/store"
)

// ReviewStore is the durable rule/alias store as seen by the lifecycle
// manager: the four operation shapes it depends on, plus listing.
type ReviewStore interface {
	GetRulesByStatus(status string) ([]store.Rule, error)
	UpdateRuleStatus(id int64, status string, approvedBy *int64) error
	UpdateRuleText(id int64, text string) error
	UpdateRuleTextAndApprove(id int64, text string, approvedBy int64) error
	InsertAlias(alias *store.Alias) error
	GetAliasesByStatus(status string) ([]store.Alias, error)
	UpdateAliasStatus(id int64, status string) error
}

// LifecycleManager drives the pending -> approved/rejected transitions and
// keeps the knowledge cache in step: every approval triggers a reload so the
// rule or alias is live on the very next question.
type LifecycleManager struct {
	store     ReviewStore
	knowledge *knowledge.Store
}

func NewLifecycleManager(reviewStore ReviewStore, knowledgeStore *knowledge.Store) *LifecycleManager {
	return &LifecycleManager{store: reviewStore, knowledge: knowledgeStore}
}

func (m *LifecycleManager) PendingRules() ([]store.Rule, error) {
	return m.store.GetRulesByStatus(store.StatusPending)
}

func (m *LifecycleManager) PendingAliases() ([]store.Alias, error) {
	return m.store.GetAliasesByStatus(store.StatusPending)
}

func (m *LifecycleManager) ApproveRule(id int64, adminID int64) error {
	if err := m.store.UpdateRuleStatus(id, store.StatusApproved, &adminID); err != nil {
		return fmt.Errorf("failed to approve rule %d: %w", id, err)
	}
	m.Reload()
	return nil
}

func (m *LifecycleManager) RejectRule(id int64) error {
	if err := m.store.UpdateRuleStatus(id, store.StatusRejected, nil); err != nil {
		return fmt.Errorf("failed to reject rule %d: %w", id, err)
	}
	return nil
}

// EditRuleText changes a pending rule's wording without approving it. No
// reload: a pending rule is invisible to the cache either way.
func (m *LifecycleManager) EditRuleText(id int64, text string) error {
	if err := m.store.UpdateRuleText(id, text); err != nil {
		return fmt.Errorf("failed to edit rule %d: %w", id, err)
	}
	return nil
}

// EditAndApproveRule is the one-action review path: the reviewer fixes the
// wording and approves it in a single atomic store transition.
func (m *LifecycleManager) EditAndApproveRule(id int64, text string, adminID int64) error {
	if err := m.store.UpdateRuleTextAndApprove(id, text, adminID); err != nil {
		return fmt.Errorf("failed to edit and approve rule %d: %w", id, err)
	}
	m.Reload()
	return nil
}

// SubmitAlias queues a new alias for review.
func (m *LifecycleManager) SubmitAlias(alias *store.Alias) error {
	alias.Status = store.StatusPending
	if err := m.store.InsertAlias(alias); err != nil {
		return fmt.Errorf("failed to submit alias: %w", err)
	}
	return nil
}

func (m *LifecycleManager) ApproveAlias(id int64) error {
	if err := m.store.UpdateAliasStatus(id, store.StatusApproved); err != nil {
		return fmt.Errorf("failed to approve alias %d: %w", id, err)
	}
	m.Reload()
	return nil
}

func (m *LifecycleManager) RejectAlias(id int64) error {
	if err := m.store.UpdateAliasStatus(id, store.StatusRejected); err != nil {
		return fmt.Errorf("failed to reject alias %d: %w", id, err)
	}
	return nil
}

// Reload rebuilds the knowledge snapshot from the approved records. A reload
// failure is logged, never propagated: the lifecycle transition has already
// happened in the durable store, and the stale snapshot stays usable.
func (m *LifecycleManager) Reload() {
	rules, err := m.store.GetRulesByStatus(store.StatusApproved)
	if err != nil {
		log.Printf("Knowledge reload failed to fetch rules: %v", err)
		return
	}
	aliases, err := m.store.GetAliasesByStatus(store.StatusApproved)
	if err != nil {
		log.Printf("Knowledge reload failed to fetch aliases: %v", err)
		return
	}
	m.knowledge.Load(rules, aliases)
}

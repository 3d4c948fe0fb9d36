package model

import "time"

// PledgeStatus 认捐状态
type PledgeStatus string

const (
	PledgeStatusPending    PledgeStatus = "PENDING"
	PledgeStatusProcessing PledgeStatus = "PROCESSING"
	PledgeStatusConfirmed  PledgeStatus = "CONFIRMED"
	PledgeStatusCompleted  PledgeStatus = "COMPLETED"
	PledgeStatusReleased   PledgeStatus = "RELEASED"
	PledgeStatusRefunded   PledgeStatus = "REFUNDED"
	PledgeStatusFailed     PledgeStatus = "FAILED"
	PledgeStatusCancelled  PledgeStatus = "CANCELLED"
)

// pledgeTransitions 只允许向前或平级的流转；REFUNDED 只能从 COMPLETED 进入
var pledgeTransitions = map[PledgeStatus][]PledgeStatus{
	PledgeStatusPending: {
		PledgeStatusProcessing, PledgeStatusConfirmed, PledgeStatusCompleted,
		PledgeStatusFailed, PledgeStatusCancelled,
	},
	PledgeStatusProcessing: {
		PledgeStatusConfirmed, PledgeStatusCompleted, PledgeStatusFailed, PledgeStatusCancelled,
	},
	PledgeStatusConfirmed: {
		PledgeStatusCompleted, PledgeStatusFailed, PledgeStatusCancelled,
	},
	PledgeStatusCompleted: {
		PledgeStatusReleased, PledgeStatusRefunded,
	},
}

var AllPledgeStatuses = []PledgeStatus{
	PledgeStatusPending,
	PledgeStatusProcessing,
	PledgeStatusConfirmed,
	PledgeStatusCompleted,
	PledgeStatusReleased,
	PledgeStatusRefunded,
	PledgeStatusFailed,
	PledgeStatusCancelled,
}

func (s PledgeStatus) Valid() bool {
	_, ok := pledgeTransitions[s]
	return ok || s.IsTerminal()
}

func (s PledgeStatus) IsTerminal() bool {
	switch s {
	case PledgeStatusReleased, PledgeStatusRefunded, PledgeStatusFailed, PledgeStatusCancelled:
		return true
	}
	return false
}

func (s PledgeStatus) CanTransitionTo(next PledgeStatus) bool {
	for _, allowed := range pledgeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Pledge 认捐记录
type Pledge struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"project_id"`
	BackerID    string       `json:"backer_id"`
	Amount      int64        `json:"amount"`
	Status      PledgeStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	RefundedAt  *time.Time   `json:"refunded_at,omitempty"`
}

// Apply 把认捐推进到 next，并维护与状态一致的时间戳
func (p *Pledge) Apply(next PledgeStatus, at time.Time) {
	p.Status = next
	p.UpdatedAt = at
	switch next {
	case PledgeStatusCompleted:
		t := at
		p.CompletedAt = &t
	case PledgeStatusRefunded:
		t := at
		p.RefundedAt = &t
	}
}

package mq

import "time"

// PledgeCreatedPayload 支付服务创建认捐后发布
type PledgeCreatedPayload struct {
	EventID   string    `json:"event_id"`
	PledgeID  string    `json:"pledge_id,omitempty"`
	ProjectID string    `json:"project_id"`
	BackerID  string    `json:"backer_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// PledgeStatusChangedPayload 支付回调：认捐进入新状态
type PledgeStatusChangedPayload struct {
	EventID    string    `json:"event_id"`
	PledgeID   string    `json:"pledge_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
	TraceID    string    `json:"trace_id,omitempty"`
}

// PledgeLedgerPayload 账本记录或更新认捐后对外发布
type PledgeLedgerPayload struct {
	PledgeID   string    `json:"pledge_id"`
	ProjectID  string    `json:"project_id"`
	Amount     int64     `json:"amount"`
	From       string    `json:"from,omitempty"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
	TraceID    string    `json:"trace_id,omitempty"`
}

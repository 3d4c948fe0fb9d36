package mq

import "time"

type ProjectCreatedPayload struct {
	ProjectID   string    `json:"project_id"`
	CreatorID   string    `json:"creator_id"`
	CampaignID  string    `json:"campaign_id,omitempty"`
	Title       string    `json:"title"`
	FundingGoal int64     `json:"funding_goal"`
	Deadline    time.Time `json:"funding_deadline"`
	CreatedAt   time.Time `json:"created_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}

type ProjectStatusChangedPayload struct {
	ProjectID string    `json:"project_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
	TraceID   string    `json:"trace_id,omitempty"`
}

type MilestoneCreatedPayload struct {
	MilestoneID   string    `json:"milestone_id"`
	ProjectID     string    `json:"project_id"`
	Title         string    `json:"title"`
	FundingAmount int64     `json:"funding_amount"`
	OrderIndex    int       `json:"order_index"`
	CreatedAt     time.Time `json:"created_at"`
	TraceID       string    `json:"trace_id,omitempty"`
}

package model

import "time"

type MilestoneStatus string

const (
	MilestoneStatusPending   MilestoneStatus = "pending"
	MilestoneStatusSubmitted MilestoneStatus = "submitted"
	MilestoneStatusApproved  MilestoneStatus = "approved"
	MilestoneStatusRejected  MilestoneStatus = "rejected"
)

// Milestone 项目的一个资金阶段
//
// OrderIndex 由调用方给定，不校验唯一性和连续性。
type Milestone struct {
	ID            string          `json:"id"`
	ProjectID     string          `json:"project_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	TargetDate    *time.Time      `json:"target_date,omitempty"`
	FundingAmount int64           `json:"funding_amount"`
	OrderIndex    int             `json:"order_index"`
	Status        MilestoneStatus `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

package model

import (
	"math"
	"time"
)

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "DRAFT"       // 草稿
	ProjectStatusActive     ProjectStatus = "ACTIVE"      // 募集中
	ProjectStatusFunded     ProjectStatus = "FUNDED"      // 已达标
	ProjectStatusInProgress ProjectStatus = "IN_PROGRESS" // 执行中
	ProjectStatusCompleted  ProjectStatus = "COMPLETED"   // 已完成（终态）
	ProjectStatusCancelled  ProjectStatus = "CANCELLED"   // 已取消（终态）
)

// projectTransitions 合法的状态流转表
var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectStatusDraft:      {ProjectStatusActive, ProjectStatusCancelled},
	ProjectStatusActive:     {ProjectStatusFunded, ProjectStatusCancelled},
	ProjectStatusFunded:     {ProjectStatusInProgress, ProjectStatusCancelled},
	ProjectStatusInProgress: {ProjectStatusCompleted, ProjectStatusCancelled},
}

// AllProjectStatuses 所有项目状态，按生命周期顺序
var AllProjectStatuses = []ProjectStatus{
	ProjectStatusDraft,
	ProjectStatusActive,
	ProjectStatusFunded,
	ProjectStatusInProgress,
	ProjectStatusCompleted,
	ProjectStatusCancelled,
}

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusDraft, ProjectStatusActive, ProjectStatusFunded,
		ProjectStatusInProgress, ProjectStatusCompleted, ProjectStatusCancelled:
		return true
	}
	return false
}

// IsTerminal 终态不再接受任何状态变更
func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectStatusCompleted || s == ProjectStatusCancelled
}

// CanTransitionTo 终态先于流转表检查
func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	if s.IsTerminal() {
		return false
	}
	for _, allowed := range projectTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Project 募资项目
type Project struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	FundingGoal     int64         `json:"funding_goal"` // 最小货币单位
	FundingDeadline time.Time     `json:"funding_deadline"`
	Status          ProjectStatus `json:"status"`
	CreatorID       string        `json:"creator_id"`
	CampaignID      *string       `json:"campaign_id,omitempty"`
	City            *string       `json:"city,omitempty"`
	State           *string       `json:"state,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ProjectWithFunding 项目 + 实时资金汇总
type ProjectWithFunding struct {
	Project
	Funding FundingSummary `json:"funding"`
}

// Campaign 外部拥有的活动，只读
type Campaign struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
}

// Caller 已认证的调用者
type Caller struct {
	UserID string
	Admin  bool
}

// SortField 列表排序字段（白名单）
type SortField string

const (
	SortByCreatedAt       SortField = "created_at"
	SortByFundingDeadline SortField = "funding_deadline"
	SortByFundingGoal     SortField = "funding_goal"
)

func (f SortField) Valid() bool {
	switch f {
	case SortByCreatedAt, SortByFundingDeadline, SortByFundingGoal:
		return true
	}
	return false
}

// ProjectFilter 列表过滤条件，零值表示不过滤
type ProjectFilter struct {
	Status    ProjectStatus
	CreatorID string
	Search    string
	City      string
	State     string
}

// ProjectQuery 列表查询
type ProjectQuery struct {
	Filter     ProjectFilter
	Page       int // 从 1 开始
	Limit      int
	SortBy     SortField
	Descending bool
}

// Offset 分页偏移；溢出时饱和到 math.MaxInt
func (q ProjectQuery) Offset() int {
	if q.Page <= 1 || q.Limit <= 0 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return math.MaxInt
	}
	return (q.Page - 1) * q.Limit
}

// ProjectPage 一页项目
type ProjectPage struct {
	Projects []ProjectWithFunding `json:"projects"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	Limit    int                  `json:"limit"`
	HasMore  bool                 `json:"has_more"`
}

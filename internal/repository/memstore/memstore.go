// Package memstore 是仓储层的内存实现，用于本地运行（storage.driver: memory）和测试。
//
// 所有写操作在同一把锁内完成"读取-校验-写入"，与 Postgres 实现中
// SELECT ... FOR UPDATE 事务提供相同的原子性。
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"civicfund/internal/model"
	"civicfund/internal/repository"
	"civicfund/pkg/outbox"
)

type Store struct {
	mu         sync.RWMutex
	projects   map[string]model.Project
	milestones map[string][]model.Milestone // project_id → milestones
	pledges    map[string]model.Pledge
	campaigns  map[string]model.Campaign
	messages   []outbox.Message
}

func New() *Store {
	return &Store{
		projects:   make(map[string]model.Project),
		milestones: make(map[string][]model.Milestone),
		pledges:    make(map[string]model.Pledge),
		campaigns:  make(map[string]model.Campaign),
	}
}

// PutCampaign 写入活动（活动由外部系统维护，这里只用于初始化）
func (s *Store) PutCampaign(c model.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = c
}

// Messages 返回已提交的 outbox 消息副本
func (s *Store) Messages() []outbox.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

func (s *Store) GetCampaign(_ context.Context, id string) (*model.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateProject(_ context.Context, p *model.Project, msgs []outbox.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[p.ID]; exists {
		return fmt.Errorf("%w: project %s", repository.ErrDuplicate, p.ID)
	}
	if p.CampaignID != nil {
		if _, ok := s.campaigns[*p.CampaignID]; !ok {
			return fmt.Errorf("%w: campaign %s", repository.ErrNotFound, *p.CampaignID)
		}
	}
	s.projects[p.ID] = *p
	s.messages = append(s.messages, msgs...)
	return nil
}

func (s *Store) GetProject(_ context.Context, id string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) allocatedLocked(projectID string) int64 {
	var sum int64
	for _, m := range s.milestones[projectID] {
		sum += m.FundingAmount
	}
	return sum
}

func (s *Store) UpdateProject(_ context.Context, id string, fn repository.ProjectMutation) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	draft := current
	msgs, err := fn(&draft, s.allocatedLocked(id))
	if err != nil {
		return nil, err
	}
	// 与 SQL 实现一致：id / creator / campaign / created_at 不可变
	draft.ID = current.ID
	draft.CreatorID = current.CreatorID
	draft.CampaignID = current.CampaignID
	draft.CreatedAt = current.CreatedAt

	s.projects[id] = draft
	s.messages = append(s.messages, msgs...)
	return &draft, nil
}

func matchesFilter(p model.Project, f model.ProjectFilter) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.CreatorID != "" && p.CreatorID != f.CreatorID {
		return false
	}
	if f.City != "" && (p.City == nil || !strings.EqualFold(*p.City, f.City)) {
		return false
	}
	if f.State != "" && (p.State == nil || !strings.EqualFold(*p.State, f.State)) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(p.Title), q) && !strings.Contains(strings.ToLower(p.Description), q) {
			return false
		}
	}
	return true
}

func compareProjects(a, b model.Project, field model.SortField) int {
	var c int
	switch field {
	case model.SortByFundingDeadline:
		c = a.FundingDeadline.Compare(b.FundingDeadline)
	case model.SortByFundingGoal:
		c = cmp.Compare(a.FundingGoal, b.FundingGoal)
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func (s *Store) ListProjects(_ context.Context, q model.ProjectQuery) ([]model.Project, int64, error) {
	s.mu.RLock()
	matched := make([]model.Project, 0)
	for _, p := range s.projects {
		if matchesFilter(p, q.Filter) {
			matched = append(matched, p)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b model.Project) int {
		c := compareProjects(a, b, q.SortBy)
		if q.Descending {
			return -c
		}
		return c
	})

	total := int64(len(matched))
	start := min(q.Offset(), len(matched))
	end := min(start+q.Limit, len(matched))
	return matched[start:end], total, nil
}

func (s *Store) ListFeaturedCandidates(_ context.Context, now time.Time, limit int) ([]model.Project, error) {
	s.mu.RLock()
	candidates := make([]model.Project, 0)
	for _, p := range s.projects {
		if p.Status == model.ProjectStatusActive && !p.FundingDeadline.Before(now) {
			candidates = append(candidates, p)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(candidates, func(a, b model.Project) int {
		return compareProjects(a, b, model.SortByCreatedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *Store) CreateMilestone(_ context.Context, m *model.Milestone, guard repository.MilestoneGuard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[m.ProjectID]
	if !ok {
		return repository.ErrNotFound
	}
	msgs, err := guard(&p, s.allocatedLocked(m.ProjectID))
	if err != nil {
		return err
	}

	s.milestones[m.ProjectID] = append(s.milestones[m.ProjectID], *m)
	s.messages = append(s.messages, msgs...)
	return nil
}

func (s *Store) ListMilestones(_ context.Context, projectID string) ([]model.Milestone, error) {
	s.mu.RLock()
	out := slices.Clone(s.milestones[projectID])
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b model.Milestone) int {
		if c := cmp.Compare(a.OrderIndex, b.OrderIndex); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if out == nil {
		out = []model.Milestone{}
	}
	return out, nil
}

func (s *Store) InsertPledge(_ context.Context, p *model.Pledge, msgs []outbox.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[p.ProjectID]; !ok {
		return fmt.Errorf("%w: project %s", repository.ErrNotFound, p.ProjectID)
	}
	if _, exists := s.pledges[p.ID]; exists {
		return fmt.Errorf("%w: pledge %s", repository.ErrDuplicate, p.ID)
	}
	s.pledges[p.ID] = *p
	s.messages = append(s.messages, msgs...)
	return nil
}

func (s *Store) GetPledge(_ context.Context, id string) (*model.Pledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pledges[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) UpdatePledge(_ context.Context, id string, fn repository.PledgeMutation) (*model.Pledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.pledges[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	draft := current
	msgs, err := fn(&draft)
	if err != nil {
		return nil, err
	}
	s.pledges[id] = draft
	s.messages = append(s.messages, msgs...)
	return &draft, nil
}

func (s *Store) ListPledges(_ context.Context, projectIDs []string, statuses []model.PledgeStatus) ([]model.Pledge, error) {
	s.mu.RLock()
	out := make([]model.Pledge, 0)
	for _, p := range s.pledges {
		if !slices.Contains(projectIDs, p.ProjectID) {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, p.Status) {
			continue
		}
		out = append(out, p)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Pledge) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// SumCompletedPledges 单次遍历认捐集合，按项目累加
func (s *Store) SumCompletedPledges(_ context.Context, projectIDs []string) (map[string]model.FundingTotals, error) {
	wanted := make(map[string]struct{}, len(projectIDs))
	for _, id := range projectIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]model.FundingTotals, len(projectIDs))
	for _, p := range s.pledges {
		if p.Status != model.PledgeStatusCompleted {
			continue
		}
		if _, ok := wanted[p.ProjectID]; !ok {
			continue
		}
		t := totals[p.ProjectID]
		t.Amount += p.Amount
		t.Count++
		totals[p.ProjectID] = t
	}
	return totals, nil
}

func (s *Store) GetFundingGoals(_ context.Context, projectIDs []string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goals := make(map[string]int64, len(projectIDs))
	for _, id := range projectIDs {
		if p, ok := s.projects[id]; ok {
			goals[id] = p.FundingGoal
		}
	}
	return goals, nil
}

// SetProjectGoal 绕过业务校验直接改写目标金额，只用于构造异常数据
func (s *Store) SetProjectGoal(id string, goal int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[id]; ok {
		p.FundingGoal = goal
		s.projects[id] = p
	}
}

// Ping 与 pgxpool.Pool.Ping 对齐，供 readiness 使用
func (s *Store) Ping(context.Context) error {
	return nil
}

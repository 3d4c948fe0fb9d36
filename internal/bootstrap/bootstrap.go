// Package bootstrap 根据配置组装存储和业务服务，供 cmd/api 与 cmd/worker 共用。
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	appconfig "civicfund/config"
	dbcontracts "civicfund/contracts/db"
	"civicfund/internal/repository"
	"civicfund/internal/repository/memstore"
	"civicfund/internal/service/featured"
	"civicfund/internal/service/funding"
	"civicfund/internal/service/milestone"
	"civicfund/internal/service/pledge"
	"civicfund/internal/service/project"
	"civicfund/internal/service/txretry"
	"civicfund/pkg/db"
	"civicfund/pkg/outbox"
)

// Stores 各服务依赖的存储；memory 模式下全部由同一个 memstore 提供
type Stores struct {
	Projects   project.Store
	Campaigns  project.CampaignStore
	Milestones milestone.Store
	Pledges    pledge.Store
	Funding    funding.Store
	Candidates featured.CandidateStore

	// postgres 模式下非 nil
	Pool   *pgxpool.Pool
	Outbox *outbox.Repository

	Ping  func(ctx context.Context) error
	Close func()
}

// projectMilestones 里程碑分配需要读项目，pg 实现分在两个 repository 里
type projectMilestones struct {
	*repository.ProjectRepository
	*repository.MilestoneRepository
}

// OpenStores 按 storage.driver 打开存储；postgres 模式会执行建表脚本
func OpenStores(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger) (*Stores, error) {
	switch cfg.Storage.Driver {
	case appconfig.StorageMemory:
		logger.Warn("Using in-memory storage; data is lost on restart")
		mem := memstore.New()
		return &Stores{
			Projects:   mem,
			Campaigns:  mem,
			Milestones: mem,
			Pledges:    mem,
			Funding:    mem,
			Candidates: mem,
			Ping:       mem.Ping,
			Close:      func() {},
		}, nil

	case appconfig.StoragePostgres:
		pool, err := db.NewConnection(ctx, cfg.DB, logger)
		if err != nil {
			return nil, err
		}
		if cfg.DB.AutoMigrate {
			if err := db.Migrate(ctx, pool, dbcontracts.Schema, logger); err != nil {
				pool.Close()
				return nil, err
			}
		}

		outboxRepo := outbox.NewRepository(pool)
		projects := repository.NewProjectRepository(pool, outboxRepo, logger)
		fundingRepo := repository.NewFundingRepository(pool, logger)
		return &Stores{
			Projects:   projects,
			Campaigns:  repository.NewCampaignRepository(pool, logger),
			Milestones: projectMilestones{projects, repository.NewMilestoneRepository(pool, outboxRepo, logger)},
			Pledges:    repository.NewPledgeRepository(pool, outboxRepo, logger),
			Funding:    fundingRepo,
			Candidates: projects,
			Pool:       pool,
			Outbox:     outboxRepo,
			Ping:       pool.Ping,
			Close:      pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// Services 业务服务
type Services struct {
	Funding   *funding.Aggregator
	Projects  *project.Service
	Milestone *milestone.Allocator
	Ledger    *pledge.Ledger
	Featured  *featured.Engine
}

func NewServices(cfg *appconfig.Config, stores *Stores, logger *zap.Logger) *Services {
	retry := txretry.DefaultPolicy()
	retry.Attempts = cfg.Funding.ConflictRetries

	agg := funding.NewAggregator(stores.Funding, logger)
	limits := project.Limits{MinGoal: cfg.Funding.MinGoal, MaxGoal: cfg.Funding.MaxGoal}

	return &Services{
		Funding:   agg,
		Projects:  project.NewService(stores.Projects, stores.Campaigns, agg, limits, retry, logger),
		Milestone: milestone.NewAllocator(stores.Milestones, retry, logger),
		Ledger:    pledge.NewLedger(stores.Pledges, retry, logger),
		Featured:  featured.NewEngine(stores.Candidates, agg, cfg.Funding.FeaturedDefaultLimit, cfg.Funding.FeaturedMaxLimit, logger),
	}
}

package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"civicfund/internal/model"
)

// CampaignRepository 活动由上游系统写入，这里只读
type CampaignRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewCampaignRepository(db *pgxpool.Pool, logger *zap.Logger) *CampaignRepository {
	return &CampaignRepository{db: db, logger: logger}
}

func (r *CampaignRepository) GetCampaign(ctx context.Context, id string) (_ *model.Campaign, err error) {
	ctx, done := instrument(ctx, "select", "campaigns")
	defer func() { done(err) }()

	var c model.Campaign
	err = r.db.QueryRow(ctx, `SELECT id, owner_id, title FROM campaigns WHERE id = $1`, id).
		Scan(&c.ID, &c.OwnerID, &c.Title)
	if err != nil {
		err = mapError(err)
		r.logger.Debug("Campaign lookup failed", zap.String("campaign_id", id), zap.Error(err))
		return nil, err
	}
	return &c, nil
}

package model

// FundingTotals 某项目 COMPLETED 认捐的汇总（一次分组查询得到）
type FundingTotals struct {
	Amount int64
	Count  int64
}

// FundingSummary 派生数据，不落库
type FundingSummary struct {
	CurrentFunding    int64   `json:"current_funding"`
	BackerCount       int64   `json:"backer_count"`
	FundingPercentage float64 `json:"funding_percentage"` // 不做 100 截断
}

// FeaturedProject 推荐列表的一项
type FeaturedProject struct {
	ProjectWithFunding
	Score float64 `json:"score"`
}

package mq

// 入站：支付服务发布
const (
	RoutingPledgeCreated       = "pledge.created"
	RoutingPledgeStatusChanged = "pledge.status_changed"
)

// 出站：通过 outbox 发布
const (
	RoutingProjectCreated       = "project.created"
	RoutingProjectStatusChanged = "project.status_changed"
	RoutingMilestoneCreated     = "milestone.created"
	RoutingPledgeRecorded       = "ledger.pledge_recorded"
	RoutingPledgeUpdated        = "ledger.pledge_updated"
)

// 消费队列
const (
	QueuePledgeCreated       = "civicfund.pledge.created.q"
	QueuePledgeStatusChanged = "civicfund.pledge.status_changed.q"
)

// Aggregate types stored on outbox rows.
const (
	AggregateProject   = "project"
	AggregateMilestone = "milestone"
	AggregatePledge    = "pledge"
)

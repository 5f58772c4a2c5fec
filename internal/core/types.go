package core

import "ledgercore/pkg/domain"

type (
	ResourceKind       = domain.ResourceKind
	ItemStatus         = domain.ItemStatus
	ServiceStatus      = domain.ServiceStatus
	ProcessStatus      = domain.ProcessStatus
	ProcessKind        = domain.ProcessKind
	Severity           = domain.Severity
	Base               = domain.Base
	Lot                = domain.Lot
	Item               = domain.Item
	Service            = domain.Service
	Note               = domain.Note
	Process            = domain.Process
	Location           = domain.Location
	Resource           = domain.Resource
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Grant              = domain.Grant
)

const (
	KindLot      = domain.KindLot
	KindItem     = domain.KindItem
	KindService  = domain.KindService
	KindNote     = domain.KindNote
	KindProcess  = domain.KindProcess
	KindLocation = domain.KindLocation
)

const (
	ItemStatusAvailable = domain.ItemStatusAvailable
	ItemStatusInUse     = domain.ItemStatusInUse
)

const (
	ServiceStatusRequested  = domain.ServiceStatusRequested
	ServiceStatusInProgress = domain.ServiceStatusInProgress
	ServiceStatusCompleted  = domain.ServiceStatusCompleted
)

const (
	ProcessStatusCreated    = domain.ProcessStatusCreated
	ProcessStatusInProgress = domain.ProcessStatusInProgress
	ProcessStatusCompleted  = domain.ProcessStatusCompleted
)

const (
	ProcessMaintenance    = domain.ProcessMaintenance
	ProcessProduction     = domain.ProcessProduction
	ProcessInspection     = domain.ProcessInspection
	ProcessTransportation = domain.ProcessTransportation
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionAttach = domain.ActionAttach
	ActionGrant  = domain.ActionGrant
)

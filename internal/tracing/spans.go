package tracing

// Span attribute keys.
const (
	AttrWorkflowID     = "workflow.id"
	AttrWorkflowSource = "workflow.source"
	AttrWorkflowPath   = "workflow.path"
	AttrRunID          = "run.id"
	AttrRunStatus      = "run.status"
	AttrRunStage       = "run.stage"
	AttrErrorCategory  = "run.error_category"

	AttrScanVersion   = "catalog.version"
	AttrScanRoots     = "catalog.roots"
	AttrScanWorkflows = "catalog.workflows"
	AttrScanErrors    = "catalog.errors"
	AttrScanWarnings  = "catalog.warnings"
	AttrStrategy      = "generate.strategy"
	AttrFallbackUsed  = "generate.fallback_used"
	AttrTaskID        = "scheduler.task_id"
	AttrTaskSchedule  = "scheduler.schedule"
	AttrErrorMessage  = "error.message"
)

// Span names.
const (
	SpanCatalogScan      = "catalog.scan"
	SpanEngineExecute    = "engine.execute"
	SpanGenerate         = "generate"
	SpanGenerateStrategy = "generate.strategy"
	SpanSchedulerFire    = "scheduler.fire"
)

// Event names.
const (
	EventArgumentsResolved = "arguments.resolved"
	EventStageStarted      = "stage.started"
	EventStageFailed       = "stage.failed"
	EventDiscoveryError    = "discovery.error"
	EventCollision         = "discovery.collision"
)

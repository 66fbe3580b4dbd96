/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package global

//goland:noinspection GoCommentStart,GoUnusedConst
const (
	// Configuration constants
	ConfigEnvVar          = "REFINERY_CONFIG"
	DefaultBaseDir        = "~/.refinery"
	DefaultConfigFileName = "config.json"
	DefaultWorkspaceDir   = "workspace"

	// Workspace subdirectories
	DocumentsDirName = "documents"
	PlansDirName     = "plans"
	RunsDirName      = "runs"
	ReportsDirName   = "reports"

	// MCP Tool Names - Reference (read-only, embedded)
	ToolReferenceList = "reference_list"
	ToolReferenceGet  = "reference_get"

	// MCP Tool Names - Documents
	ToolDocumentImport = "document_import"
	ToolDocumentGet    = "document_get"
	ToolDocumentList   = "document_list"

	// MCP Tool Names - Task Plans
	ToolPlanPut = "plan_put"
	ToolPlanGet = "plan_get"

	// MCP Tool Names - Refinement
	ToolRefineRun    = "refine_run"
	ToolRefineStatus = "refine_status"
	ToolRefineResult = "refine_result"

	// MCP Tool Names - Misc
	ToolLLMList        = "llm_list"
	ToolReportGenerate = "report_generate"

	// Operation modes
	ModeFullAuto = "full-auto"
	ModeSemiAuto = "semi-auto"

	// Refinement task action kinds
	ActionSurgicalEdit      = "surgical_edit"
	ActionRegenerateSection = "regenerate_section"

	// Task priorities
	PriorityCritical = "critical"
	PriorityMajor    = "major"
	PriorityMinor    = "minor"

	// Terminal statuses for a refinement run
	StatusAccepted        = "accepted"
	StatusAcceptedWarning = "accepted_warning"
	StatusBestEffort      = "best_effort"
	StatusEscalated       = "escalated"

	// Run states (while a run is in flight or settled)
	RunStateRunning  = "running"
	RunStateComplete = "complete"

	// Why the loop stopped iterating
	TerminationConverged     = "converged"
	TerminationAllLocked     = "all_locked"
	TerminationMaxIterations = "max_iterations"
	TerminationTimeout       = "timeout"
	TerminationNoTasks       = "no_tasks"

	// Why a section was locked
	LockReasonMaxEdits   = "max_edits"
	LockReasonRegression = "regression"

	// Refinement event types
	EventRefinementStart    = "refinement_start"
	EventBatchStarted       = "batch_started"
	EventBatchComplete      = "batch_complete"
	EventSectionLocked      = "section_locked"
	EventIterationComplete  = "iteration_complete"
	EventBudgetWarning      = "budget_warning"
	EventRefinementComplete = "refinement_complete"

	// Log levels
	LogLevelDebug = "DEBUG"
	LogLevelInfo  = "INFO"
	LogLevelWarn  = "WARN"
	LogLevelError = "ERROR"
	LogLevelFatal = "FATAL"

	// Refinement loop defaults
	DefaultMaxIterations    = 3
	DefaultMaxTokens        = 15000
	DefaultTimeoutMs        = 300000
	DefaultLockAfterEdits   = 2
	DefaultPlateauEpsilon   = 0.01
	DefaultWarnMargin       = 0.05
	DefaultMaxConcurrent    = 4
	DefaultAcceptFullAuto   = 0.85
	DefaultAcceptSemiAuto   = 0.90
	DefaultDispatchTimeout  = 300 // seconds, per LLM call
	MinDispatchTimeout      = 60
	MaxDispatchTimeout      = 900
	DefaultContextAnchorLen = 400 // bytes of neighbouring section text per anchor
)

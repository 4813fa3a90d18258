package protocol

// Envelope is the part of every client frame the dispatcher looks at
// before routing. RequestID is opaque and may be missing.
type Envelope struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Account   string `json:"account,omitempty"`
	Token     string `json:"token,omitempty"`
}

// Known request types, grouped as on the wire. The set is closed; an
// unknown type is a validation error, not an unchecked dispatch.
const (
	TypeAuth = "auth"

	// Messaging
	TypeSendMessage     = "send_message"
	TypeReadMessages    = "read_messages"
	TypeCountUnread     = "count_unread"
	TypeListAccounts    = "list_accounts"
	TypeArchiveMessages = "archive_messages"

	// Handoff
	TypeHandoffTask            = "handoff_task"
	TypeHandoffAccept          = "handoff_accept"
	TypeSuggestAssignee        = "suggest_assignee"
	TypeReauthorizeDelegation  = "reauthorize_delegation"

	// Tasks
	TypeUpdateTaskStatus    = "update_task_status"
	TypeReportProgress      = "report_progress"
	TypeAdaptiveSLACheck    = "adaptive_sla_check"
	TypeGetTrust            = "get_trust"
	TypeCheckCircuitBreaker = "check_circuit_breaker"
	TypeReinstateAgent      = "reinstate_agent"

	// Workspace
	TypePrepareWorktree    = "prepare_worktree_for_handoff"
	TypeGetWorkspaceStatus = "get_workspace_status"
	TypeCleanupWorkspace   = "cleanup_workspace"

	// Live sessions
	TypeShareSession     = "share_session"
	TypeJoinSession      = "join_session"
	TypeSessionBroadcast = "session_broadcast"
	TypeSessionStatus    = "session_status"
	TypeSessionHistory   = "session_history"
	TypeLeaveSession     = "leave_session"
	TypeSessionPing      = "session_ping"

	// Named sessions
	TypeNameSession    = "name_session"
	TypeListSessions   = "list_sessions"
	TypeSearchSessions = "search_sessions"

	// Knowledge
	TypeSearchKnowledge = "search_knowledge"
	TypeIndexNote       = "index_note"

	// Workflow
	TypeWorkflowTrigger = "workflow_trigger"
	TypeWorkflowStatus  = "workflow_status"
	TypeWorkflowList    = "workflow_list"
	TypeWorkflowCancel  = "workflow_cancel"

	// Health / misc
	TypePing                 = "ping"
	TypeHealthCheck          = "health_check"
	TypeHealthStatus         = "health_status"
	TypeQueryActivity        = "query_activity"
	TypeConfigReload         = "config_reload"
	TypeSearchCode           = "search_code"
	TypeReplaySession        = "replay_session"
	TypeLinkTask             = "link_task"
	TypeGetTaskLinks         = "get_task_links"
	TypeGetReviewBundle      = "get_review_bundle"
	TypeGenerateReviewBundle = "generate_review_bundle"
	TypeGetAnalytics         = "get_analytics"
	TypeCouncilAnalyze       = "council_analyze"
	TypeCouncilVerify        = "council_verify"
	TypeCouncilHistory       = "council_history"
	TypeRetroStartSession    = "retro_start_session"
	TypeRetroSubmitReview    = "retro_submit_review"
	TypeRetroSubmitSynthesis = "retro_submit_synthesis"
	TypeRetroStatus          = "retro_status"
	TypeRetroPastLearnings   = "retro_get_past_learnings"
)

// KnownTypes is the closed whitelist of post-handshake request types.
var KnownTypes = map[string]bool{
	TypeSendMessage: true, TypeReadMessages: true, TypeCountUnread: true,
	TypeListAccounts: true, TypeArchiveMessages: true,

	TypeHandoffTask: true, TypeHandoffAccept: true, TypeSuggestAssignee: true,
	TypeReauthorizeDelegation: true,

	TypeUpdateTaskStatus: true, TypeReportProgress: true, TypeAdaptiveSLACheck: true,
	TypeGetTrust: true, TypeCheckCircuitBreaker: true, TypeReinstateAgent: true,

	TypePrepareWorktree: true, TypeGetWorkspaceStatus: true, TypeCleanupWorkspace: true,

	TypeShareSession: true, TypeJoinSession: true, TypeSessionBroadcast: true,
	TypeSessionStatus: true, TypeSessionHistory: true, TypeLeaveSession: true,
	TypeSessionPing: true,

	TypeNameSession: true, TypeListSessions: true, TypeSearchSessions: true,

	TypeSearchKnowledge: true, TypeIndexNote: true,

	TypeWorkflowTrigger: true, TypeWorkflowStatus: true, TypeWorkflowList: true,
	TypeWorkflowCancel: true,

	TypePing: true, TypeHealthCheck: true, TypeHealthStatus: true,
	TypeQueryActivity: true, TypeConfigReload: true, TypeSearchCode: true,
	TypeReplaySession: true, TypeLinkTask: true, TypeGetTaskLinks: true,
	TypeGetReviewBundle: true, TypeGenerateReviewBundle: true, TypeGetAnalytics: true,
	TypeCouncilAnalyze: true, TypeCouncilVerify: true, TypeCouncilHistory: true,
	TypeRetroStartSession: true, TypeRetroSubmitReview: true,
	TypeRetroSubmitSynthesis: true, TypeRetroStatus: true, TypeRetroPastLearnings: true,
}

// Response type markers.
const (
	TypeResult  = "result"
	TypeError   = "error"
	TypePong    = "pong"
	TypeAuthOK  = "auth_ok"
)

// ErrorResponse is the wire shape of a failed request.
type ErrorResponse struct {
	Type      string   `json:"type"`
	Error     string   `json:"error"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
}

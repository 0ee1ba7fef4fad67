package models

// AgentSolveRequest is the payload sent to the issue-solving agent when a
// newly opened issue should be processed. InstallationToken and
// AnthropicAPIKey are live credentials and must never be logged.
type AgentSolveRequest struct {
	IssueID           int64    `json:"issue_id"`
	IssueNumber       int      `json:"issue_number"`
	IssueTitle        string   `json:"issue_title"`
	IssueBody         string   `json:"issue_body"`
	IssueLabels       []string `json:"issue_labels"`
	IssueAuthor       string   `json:"issue_author"`
	RepositoryURL     string   `json:"repository_url"`
	RepositoryName    string   `json:"repository_name"`
	InstallationToken string   `json:"installation_token"`
	AnthropicAPIKey   string   `json:"anthropic_api_key"`
}

// AgentNotifyRequest is the lightweight notification sent for issue
// actions that do not trigger full processing.
type AgentNotifyRequest struct {
	Action         string `json:"action"`
	IssueNumber    int    `json:"issue_number"`
	IssueTitle     string `json:"issue_title"`
	RepositoryName string `json:"repository_name"`
}

// AgentResponse is the agent's response contract.
type AgentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// DispatchResult is the normalized outcome of one gateway call. The
// gateway never propagates raw downstream errors - timeouts, transport
// failures and non-2xx responses all land here with Success=false.
type DispatchResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Name    string `json:"name"`
	Route   string `json:"route"`
}

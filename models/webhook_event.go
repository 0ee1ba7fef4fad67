package models

// Webhook event type names this broker routes on. Unknown event types are
// acknowledged and ignored - the subscription set evolves over time.
const (
	WebhookEventPing                     = "ping"
	WebhookEventInstallation             = "installation"
	WebhookEventInstallationRepositories = "installation_repositories"
	WebhookEventIssues                   = "issues"
)

// WebhookDelivery carries the trusted metadata extracted from one inbound
// webhook request's headers.
type WebhookDelivery struct {
	EventType  string
	DeliveryID string
	// TargetAppID is the proxy-supplied installation target header, used
	// as a tenant-resolution fallback when the payload lacks an app id.
	TargetAppID string
}

// WebhookEvent is the parsed payload body of an inbound GitHub webhook.
// Only the fields the router and handlers consume are mapped.
type WebhookEvent struct {
	Action              string               `json:"action"`
	Installation        *WebhookInstallation `json:"installation,omitempty"`
	Repositories        []WebhookRepository  `json:"repositories,omitempty"`
	RepositoriesAdded   []WebhookRepository  `json:"repositories_added,omitempty"`
	RepositoriesRemoved []WebhookRepository  `json:"repositories_removed,omitempty"`
	Issue               *WebhookIssue        `json:"issue,omitempty"`
	Repository          *WebhookRepository   `json:"repository,omitempty"`
	Sender              *WebhookAccount      `json:"sender,omitempty"`
}

type WebhookInstallation struct {
	ID          int64           `json:"id"`
	AppID       int64           `json:"app_id"`
	Account     *WebhookAccount `json:"account,omitempty"`
	Permissions PermissionMap   `json:"permissions,omitempty"`
	Events      []string        `json:"events,omitempty"`
}

type WebhookAccount struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Type  string `json:"type"`
}

type WebhookRepository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
	HTMLURL  string `json:"html_url,omitempty"`
}

// ToRepository converts the webhook payload shape to the persisted shape.
func (r WebhookRepository) ToRepository() Repository {
	return Repository{
		ID:       r.ID,
		Name:     r.Name,
		FullName: r.FullName,
		Private:  r.Private,
	}
}

type WebhookIssue struct {
	ID      int64          `json:"id"`
	Number  int            `json:"number"`
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Labels  []WebhookLabel `json:"labels,omitempty"`
	User    *WebhookAccount `json:"user,omitempty"`
	HTMLURL string         `json:"html_url,omitempty"`
}

// LabelNames flattens the issue's labels to their names.
func (i *WebhookIssue) LabelNames() []string {
	names := make([]string, 0, len(i.Labels))
	for _, label := range i.Labels {
		names = append(names, label.Name)
	}
	return names
}

type WebhookLabel struct {
	Name string `json:"name"`
}

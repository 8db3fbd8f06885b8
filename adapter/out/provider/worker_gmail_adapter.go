// Package provider implements the mailbox adapter.
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
	"triage_worker/pkg/httputil"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/resilience"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// maxListPage is the largest page threads.list accepts.
const maxListPage = 500

// =============================================================================
// Gmail Mailbox
// =============================================================================

// GmailConfig holds Gmail configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	User         string // "me" for the token owner

	// Options overrides the oauth2 client, e.g. for a local test server.
	Options []option.ClientOption
}

// GmailMailbox implements out.Mailbox over the Gmail REST API.
type GmailMailbox struct {
	svc  *gmail.Service
	user string
	cb   *resilience.Breaker

	mu       sync.Mutex
	labelIDs map[string]string // name -> id, nil until loaded
}

var _ out.Mailbox = (*GmailMailbox)(nil)

// NewGmailMailbox creates the adapter. Access tokens are refreshed from the stored refresh token.
func NewGmailMailbox(ctx context.Context, cfg *GmailConfig) (*GmailMailbox, error) {
	opts := cfg.Options
	if len(opts) == 0 {
		if cfg.RefreshToken == "" {
			return nil, errors.New("gmail: refresh token is required")
		}
		conf := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailModifyScope, gmail.GmailLabelsScope},
		}
		base := context.WithValue(ctx, oauth2.HTTPClient, httputil.NewClient(httputil.GmailClientConfig()))
		ts := conf.TokenSource(base, &oauth2.Token{RefreshToken: cfg.RefreshToken})
		opts = []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(base, ts))}
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	user := cfg.User
	if user == "" {
		user = "me"
	}

	return &GmailMailbox{
		svc:  svc,
		user: user,
		cb:   resilience.NewBreaker(resilience.MailboxBreakerConfig("gmail-api")),
	}, nil
}

// =============================================================================
// out.Mailbox
// =============================================================================

// SearchThreads lists threads matching query and loads them in full.
// The API pages by token, so offset is emulated by listing offset+limit ids first.
func (a *GmailMailbox) SearchThreads(ctx context.Context, query string, offset, limit int) ([]*domain.Thread, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := a.listThreadIDs(ctx, query, offset+limit)
	if err != nil {
		return nil, err
	}
	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]

	names, err := a.labelNames(ctx)
	if err != nil {
		return nil, err
	}

	threads := make([]*domain.Thread, 0, len(ids))
	for _, id := range ids {
		var th *gmail.Thread
		err := a.execute(ctx, "threads.get", func() error {
			var err error
			th, err = a.svc.Users.Threads.Get(a.user, id).Format("full").Context(ctx).Do()
			return err
		})
		if err != nil {
			return nil, a.wrapError(err, "failed to get thread")
		}
		threads = append(threads, convertThread(th, names))
	}
	return threads, nil
}

// CountMessages sums the message counts of every thread matching query.
func (a *GmailMailbox) CountMessages(ctx context.Context, query string) (int, error) {
	ids, err := a.listThreadIDs(ctx, query, 0)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, id := range ids {
		var th *gmail.Thread
		err := a.execute(ctx, "threads.get", func() error {
			var err error
			th, err = a.svc.Users.Threads.Get(a.user, id).Format("minimal").Context(ctx).Do()
			return err
		})
		if err != nil {
			return 0, a.wrapError(err, "failed to get thread")
		}
		total += len(th.Messages)
	}
	return total, nil
}

// AddLabel adds a label to one message, creating the label when it does not exist yet.
func (a *GmailMailbox) AddLabel(ctx context.Context, messageID, label string) error {
	labelID, err := a.ensureLabel(ctx, label)
	if err != nil {
		return err
	}
	err = a.execute(ctx, "messages.modify", func() error {
		_, err := a.svc.Users.Messages.Modify(a.user, messageID, &gmail.ModifyMessageRequest{
			AddLabelIds: []string{labelID},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return a.wrapError(err, "failed to modify labels")
	}
	return nil
}

// RemoveThreadLabel removes a label from every message of a thread. Unknown labels are a no-op.
func (a *GmailMailbox) RemoveThreadLabel(ctx context.Context, threadID, label string) error {
	ids, err := a.loadLabels(ctx)
	if err != nil {
		return err
	}
	labelID, ok := ids[label]
	if !ok {
		return nil
	}
	err = a.execute(ctx, "threads.modify", func() error {
		_, err := a.svc.Users.Threads.Modify(a.user, threadID, &gmail.ModifyThreadRequest{
			RemoveLabelIds: []string{labelID},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return a.wrapError(err, "failed to modify thread labels")
	}
	return nil
}

// =============================================================================
// Listing
// =============================================================================

// listThreadIDs pages through threads.list. max <= 0 lists everything.
func (a *GmailMailbox) listThreadIDs(ctx context.Context, query string, max int) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		pageSize := int64(maxListPage)
		if max > 0 && int64(max-len(ids)) < pageSize {
			pageSize = int64(max - len(ids))
		}

		var resp *gmail.ListThreadsResponse
		err := a.execute(ctx, "threads.list", func() error {
			call := a.svc.Users.Threads.List(a.user).Q(query).MaxResults(pageSize).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, a.wrapError(err, "failed to list threads")
		}

		for _, th := range resp.Threads {
			ids = append(ids, th.Id)
		}
		if resp.NextPageToken == "" || (max > 0 && len(ids) >= max) {
			break
		}
		pageToken = resp.NextPageToken
	}
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}
	return ids, nil
}

// =============================================================================
// Labels
// =============================================================================

func (a *GmailMailbox) loadLabels(ctx context.Context) (map[string]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.labelIDs != nil {
		return a.labelIDs, nil
	}

	var resp *gmail.ListLabelsResponse
	err := a.execute(ctx, "labels.list", func() error {
		var err error
		resp, err = a.svc.Users.Labels.List(a.user).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to list labels")
	}

	ids := make(map[string]string, len(resp.Labels))
	for _, l := range resp.Labels {
		ids[l.Name] = l.Id
	}
	a.labelIDs = ids
	return ids, nil
}

// labelNames returns the id -> name view of the label cache.
func (a *GmailMailbox) labelNames(ctx context.Context) (map[string]string, error) {
	ids, err := a.loadLabels(ctx)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make(map[string]string, len(ids))
	for name, id := range ids {
		names[id] = name
	}
	return names, nil
}

func (a *GmailMailbox) ensureLabel(ctx context.Context, name string) (string, error) {
	ids, err := a.loadLabels(ctx)
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	id, ok := ids[name]
	a.mu.Unlock()
	if ok {
		return id, nil
	}

	var created *gmail.Label
	err = a.execute(ctx, "labels.create", func() error {
		var err error
		created, err = a.svc.Users.Labels.Create(a.user, &gmail.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", a.wrapError(err, "failed to create label")
	}

	logger.Info("[GmailMailbox] created label %s (%s)", name, created.Id)
	a.mu.Lock()
	a.labelIDs[name] = created.Id
	a.mu.Unlock()
	return created.Id, nil
}

// =============================================================================
// Conversion
// =============================================================================

func convertThread(th *gmail.Thread, labelNames map[string]string) *domain.Thread {
	thread := &domain.Thread{ID: th.Id, Messages: make([]*domain.Message, 0, len(th.Messages))}
	seen := map[string]bool{}

	for _, m := range th.Messages {
		msg := convertMessage(m, labelNames)
		thread.Messages = append(thread.Messages, msg)
		for _, l := range msg.Labels {
			if !seen[l] {
				seen[l] = true
				thread.Labels = append(thread.Labels, l)
			}
		}
	}
	if len(thread.Messages) > 0 {
		thread.Subject = thread.Messages[0].Subject
	}
	return thread
}

func convertMessage(m *gmail.Message, labelNames map[string]string) *domain.Message {
	msg := &domain.Message{ID: m.Id, ThreadID: m.ThreadId}

	for _, id := range m.LabelIds {
		if name, ok := labelNames[id]; ok {
			msg.Labels = append(msg.Labels, name)
		} else {
			msg.Labels = append(msg.Labels, id)
		}
	}

	if m.Payload != nil {
		msg.From = getHeader(m.Payload.Headers, "From")
		msg.Subject = getHeader(m.Payload.Headers, "Subject")
		if t, err := mail.ParseDate(getHeader(m.Payload.Headers, "Date")); err == nil {
			msg.Date = t
		}

		var text, htmlBody string
		extractBody(m.Payload, &text, &htmlBody)
		msg.Body = text
		if msg.Body == "" && htmlBody != "" {
			msg.Body = htmlToText(htmlBody)
		}
	}
	if msg.Date.IsZero() && m.InternalDate > 0 {
		msg.Date = time.UnixMilli(m.InternalDate)
	}
	return msg
}

func extractBody(part *gmail.MessagePart, text, htmlBody *string) {
	if part == nil {
		return
	}
	if part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if *text == "" {
				*text = decodeBase64URL(part.Body.Data)
			}
		case "text/html":
			if *htmlBody == "" {
				*htmlBody = decodeBase64URL(part.Body.Data)
			}
		}
	}
	for _, p := range part.Parts {
		extractBody(p, text, htmlBody)
	}
}

func decodeBase64URL(s string) string {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return string(data)
	}
	if data, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return string(data)
	}
	return ""
}

var (
	htmlBreak = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>`)
	htmlTag   = regexp.MustCompile(`<[^>]*>`)
)

func htmlToText(s string) string {
	s = htmlBreak.ReplaceAllString(s, "\n")
	s = htmlTag.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// =============================================================================
// Circuit breaker & errors
// =============================================================================

// execute wraps an API call with circuit breaker protection.
// Client errors are passed through without counting against the breaker.
func (a *GmailMailbox) execute(ctx context.Context, operation string, fn func() error) error {
	_, err := resilience.Execute(a.cb, func() (struct{}, error) {
		err := fn()
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case 400, 401, 403, 404:
				return struct{}{}, resilience.Ignore(err)
			}
		}
		return struct{}{}, err
	})

	if err != nil {
		logger.WithContext(ctx).WithError(err).Warn("[GmailMailbox] %s failed: state=%s", operation, a.cb.State())
	}
	return err
}

// IsCircuitOpen returns true if the circuit breaker is open (API calls will fail fast).
func (a *GmailMailbox) IsCircuitOpen() bool {
	return a.cb.IsOpen()
}

func (a *GmailMailbox) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			return out.NewProviderError("gmail", out.ProviderErrTokenExpired, "Token expired", err, false)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") {
				return out.NewProviderError("gmail", out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError("gmail", out.ProviderErrAuth, "Access denied", err, false)
		case 404:
			return out.NewProviderError("gmail", out.ProviderErrNotFound, "Not found", err, false)
		case 429:
			return out.NewProviderError("gmail", out.ProviderErrRateLimit, "Too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError("gmail", out.ProviderErrServer, "Server error", err, true)
		}
	}

	return out.NewProviderError("gmail", out.ProviderErrServer, defaultMsg, err, true)
}

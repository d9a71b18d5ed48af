package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"goatbot/internal/domain"
)

const (
	defaultBaseURL   = "https://www.instagram.com"
	defaultUserAgent = "Mozilla/5.0 (Linux; Android 12; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	appID            = "936619743392459"

	// Instagram throttles sends aggressively, so outbound mutations
	// stay well under one per second.
	sendRate  = rate.Limit(0.5)
	sendBurst = 2
)

// Client implements domain.Transport against Instagram's web API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	session    *Session
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type ClientOption func(*Client)

// WithBaseURL points the client at a different API host. Used by tests.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

func NewClient(session *Session, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		session:    session,
		limiter:    rate.NewLimiter(sendRate, sendBurst),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SelfID() string { return c.session.UserID }

// clientContext generates the per-send idempotency token Instagram expects.
func clientContext() string {
	return strconv.FormatInt(rand.Int64N(1<<53), 10)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("X-IG-App-ID", appID)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+"/direct/inbox/")
	req.Header.Set("X-CSRFToken", c.session.CSRFToken)

	var pairs []string
	for _, ck := range c.session.Cookies {
		pairs = append(pairs, ck.Key+"="+ck.Value)
	}
	req.Header.Set("Cookie", strings.Join(pairs, "; "))
}

// do performs one API call and maps HTTP failures onto the transport error
// taxonomy. A nil error means a 2xx response; body is the raw response.
func (c *Client) do(ctx context.Context, op, method, path string, form url.Values) ([]byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &domain.TransportError{Kind: domain.ErrKindTransient, Op: op, Err: err}
	}
	c.setHeaders(req)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Kind: domain.ErrKindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &domain.TransportError{Kind: domain.ErrKindTransient, Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.TransportError{
			Kind:       domain.ClassifyStatus(resp.StatusCode),
			HTTPStatus: resp.StatusCode,
			Op:         op,
		}
	}
	return raw, nil
}

// waitSend applies the outbound mutation throttle.
func (c *Client) waitSend(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &domain.TransportError{Kind: domain.ErrKindTransient, Op: op, Err: err}
	}
	return nil
}

// inboxResponse mirrors the subset of the inbox payload the bot consumes.
type inboxResponse struct {
	Inbox struct {
		Threads []struct {
			ThreadID string            `json:"thread_id"`
			IsGroup  bool              `json:"is_group"`
			Items    []json.RawMessage `json:"items"`
		} `json:"threads"`
	} `json:"inbox"`
}

type inboxItemJSON struct {
	ItemID    string `json:"item_id"`
	UserID    int64  `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
	ItemType  string `json:"item_type"`
	Text      string `json:"text"`
}

func (c *Client) FetchInbox(ctx context.Context) (*domain.Inbox, error) {
	path := "/api/v1/direct_v2/inbox/?" + url.Values{
		"visual_message_return_type": {"unseen"},
		"persistentBadging":          {"true"},
		"limit":                      {"20"},
	}.Encode()

	raw, err := c.do(ctx, "fetch inbox", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp inboxResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.TransportError{Kind: domain.ErrKindTransient, Op: "fetch inbox", Err: err}
	}

	inbox := &domain.Inbox{}
	for _, t := range resp.Inbox.Threads {
		thread := domain.InboxThread{ID: t.ThreadID, IsGroup: t.IsGroup}
		for _, rawItem := range t.Items {
			var it inboxItemJSON
			if err := json.Unmarshal(rawItem, &it); err != nil {
				c.logger.Warn("skipping unparseable inbox item", "thread", t.ThreadID, "err", err)
				continue
			}
			// The full item JSON travels along so the normalizer can
			// probe type-specific payload fields.
			thread.Items = append(thread.Items, domain.RawItem{
				ID:        it.ItemID,
				AuthorID:  strconv.FormatInt(it.UserID, 10),
				Timestamp: time.UnixMicro(it.Timestamp),
				Type:      it.ItemType,
				Text:      it.Text,
				Payload:   rawItem,
			})
		}
		inbox.Threads = append(inbox.Threads, thread)
	}
	return inbox, nil
}

type sendResponse struct {
	Status  string `json:"status"`
	Payload struct {
		ItemID string `json:"item_id"`
	} `json:"payload"`
	Message string `json:"message"`
}

func (c *Client) SendMessage(ctx context.Context, threadID, text string) (string, error) {
	const op = "send message"
	if err := c.waitSend(ctx, op); err != nil {
		return "", err
	}

	form := url.Values{
		"action":           {"send_item"},
		"send_attribution": {"direct_thread"},
		"client_context":   {clientContext()},
		"mutation_token":   {clientContext()},
		"thread_ids":       {"[" + threadID + "]"},
		"text":             {text},
	}
	raw, err := c.do(ctx, op, http.MethodPost, "/api/v1/direct_v2/threads/broadcast/text/", form)
	if err != nil {
		return "", err
	}

	var resp sendResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &domain.TransportError{Kind: domain.ErrKindTransient, Op: op, Err: err}
	}
	if resp.Status != "ok" {
		return "", &domain.TransportError{
			Kind: domain.ErrKindTransient, Op: op,
			Err: fmt.Errorf("status %q: %s", resp.Status, resp.Message),
		}
	}
	return resp.Payload.ItemID, nil
}

func (c *Client) GetUserInfo(ctx context.Context, userID string) (*domain.UserProfile, error) {
	const op = "get user info"
	raw, err := c.do(ctx, op, http.MethodGet, "/api/v1/users/"+url.PathEscape(userID)+"/info/", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		User struct {
			PK            json.Number `json:"pk"`
			Username      string      `json:"username"`
			FullName      string      `json:"full_name"`
			ProfilePicURL string      `json:"profile_pic_url"`
		} `json:"user"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.TransportError{Kind: domain.ErrKindTransient, Op: op, Err: err}
	}
	return &domain.UserProfile{
		ID:       resp.User.PK.String(),
		Username: resp.User.Username,
		FullName: resp.User.FullName,
		PicURL:   resp.User.ProfilePicURL,
	}, nil
}

func (c *Client) MarkRead(ctx context.Context, threadID, itemID string) error {
	form := url.Values{
		"action":  {"mark_seen"},
		"item_id": {itemID},
	}
	_, err := c.do(ctx, "mark read", http.MethodPost,
		"/api/v1/direct_v2/threads/"+url.PathEscape(threadID)+"/mark_visual_item_seen/", form)
	return err
}

func (c *Client) SetTyping(ctx context.Context, threadID string, active bool) error {
	status := "0"
	if active {
		status = "1"
	}
	form := url.Values{"activity_status": {status}}
	_, err := c.do(ctx, "set typing", http.MethodPost,
		"/api/v1/direct_v2/threads/"+url.PathEscape(threadID)+"/activity/", form)
	return err
}

func (c *Client) React(ctx context.Context, threadID, itemID, emoji string) error {
	const op = "react"
	if err := c.waitSend(ctx, op); err != nil {
		return err
	}
	if emoji == "" {
		emoji = "❤️"
	}
	form := url.Values{
		"reaction_type":   {"like"},
		"reaction_status": {"created"},
		"emoji":           {emoji},
	}
	_, err := c.do(ctx, op, http.MethodPost,
		"/api/v1/direct_v2/threads/"+url.PathEscape(threadID)+"/items/"+url.PathEscape(itemID)+"/reactions/", form)
	return err
}

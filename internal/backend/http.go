package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"tunnelbot/internal/models"
	"tunnelbot/internal/pkg/httpclient"
)

// HTTPBackend speaks the panel daemon's REST API. Each server row carries its
// own domain and auth token; the protocol travels in the request payload.
type HTTPBackend struct {
	client *httpclient.Client
	logger *zap.Logger
}

func NewHTTPBackend(timeout time.Duration, insecure bool, logger *zap.Logger) *HTTPBackend {
	client := httpclient.New(timeout)
	if insecure {
		client.WithInsecureSkipVerify()
	}
	return &HTTPBackend{client: client, logger: logger}
}

type apiReply struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Data    *Result `json:"data"`
}

func baseURL(srv *models.Server) string {
	domain := strings.TrimRight(strings.TrimSpace(srv.Domain), "/")
	if strings.Contains(domain, "://") {
		return domain
	}
	return "https://" + domain
}

func (b *HTTPBackend) Create(ctx context.Context, srv *models.Server, p CreateParams) (*Result, error) {
	var reply apiReply
	resp, err := b.client.Request().
		SetContext(ctx).
		SetAuthToken(srv.AuthToken).
		SetBody(p).
		SetResult(&reply).
		Post(baseURL(srv) + "/api/accounts")
	if err != nil {
		return nil, fmt.Errorf("panel create on %s: %w", srv.Domain, err)
	}
	if resp.IsError() || !reply.Success || reply.Data == nil {
		b.logger.Warn("panel rejected create",
			zap.String("server", srv.Domain),
			zap.String("protocol", string(p.Protocol)),
			zap.Int("status", resp.StatusCode()),
			zap.String("message", reply.Message))
		return nil, &Error{Op: "create", Server: srv.Domain, Message: reply.Message}
	}
	return reply.Data, nil
}

func (b *HTTPBackend) Renew(ctx context.Context, srv *models.Server, p RenewParams) (*Result, error) {
	var reply apiReply
	resp, err := b.client.Request().
		SetContext(ctx).
		SetAuthToken(srv.AuthToken).
		SetBody(map[string]interface{}{"expires_at": p.ExpiresAt}).
		SetResult(&reply).
		Put(accountURL(srv, p.Protocol, p.Username))
	if err != nil {
		return nil, fmt.Errorf("panel renew on %s: %w", srv.Domain, err)
	}
	if resp.IsError() || !reply.Success || reply.Data == nil {
		b.logger.Warn("panel rejected renew",
			zap.String("server", srv.Domain),
			zap.String("protocol", string(p.Protocol)),
			zap.Int("status", resp.StatusCode()),
			zap.String("message", reply.Message))
		return nil, &Error{Op: "renew", Server: srv.Domain, Message: reply.Message}
	}
	return reply.Data, nil
}

func (b *HTTPBackend) Delete(ctx context.Context, srv *models.Server, protocol models.Protocol, username string) error {
	var reply apiReply
	resp, err := b.client.Request().
		SetContext(ctx).
		SetAuthToken(srv.AuthToken).
		SetResult(&reply).
		Delete(accountURL(srv, protocol, username))
	if err != nil {
		return fmt.Errorf("panel delete on %s: %w", srv.Domain, err)
	}
	// A missing remote account is fine for delete.
	if resp.StatusCode() == 404 {
		return nil
	}
	if resp.IsError() || !reply.Success {
		return &Error{Op: "delete", Server: srv.Domain, Message: reply.Message}
	}
	return nil
}

func accountURL(srv *models.Server, protocol models.Protocol, username string) string {
	return fmt.Sprintf("%s/api/accounts/%s/%s",
		baseURL(srv), url.PathEscape(string(protocol)), url.PathEscape(username))
}

package unifi

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/netopshq/switchyard/internal/cycle"
	"github.com/netopshq/switchyard/internal/domain"
)

// Pool keeps one session-holding client per controller row. Clients are
// created on first use and reused so controller logins are not repeated per
// operation.
type Pool struct {
	db      *gorm.DB
	mu      sync.Mutex
	clients map[int64]*Client
}

func NewPool(db *gorm.DB) *Pool {
	return &Pool{db: db, clients: make(map[int64]*Client)}
}

var _ cycle.GatewayResolver = (*Pool)(nil)

// GatewayFor resolves the port gateway serving a site.
func (p *Pool) GatewayFor(ctx context.Context, siteName string) (cycle.PortGateway, error) {
	return p.ForSite(ctx, siteName)
}

// ForSite returns the client for the enabled controller registered for a site.
func (p *Pool) ForSite(ctx context.Context, siteName string) (*Client, error) {
	var ctrl domain.Controller
	err := p.db.WithContext(ctx).
		Where("site_name = ? AND status = ?", siteName, "enabled").
		First(&ctrl).Error
	if err != nil {
		return nil, errors.Wrapf(err, "no enabled controller for site %s", siteName)
	}
	return p.clientFor(&ctrl), nil
}

// ForController returns the client for a controller row by id.
func (p *Pool) ForController(ctx context.Context, id int64) (*Client, error) {
	var ctrl domain.Controller
	if err := p.db.WithContext(ctx).Where("id = ?", id).First(&ctrl).Error; err != nil {
		return nil, errors.Wrapf(err, "controller %d", id)
	}
	return p.clientFor(&ctrl), nil
}

func (p *Pool) clientFor(ctrl *domain.Controller) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[ctrl.ID]; ok {
		return c
	}
	c := NewClient(ctrl)
	p.clients[ctrl.ID] = c
	return c
}

// Invalidate drops the cached client for a controller, forcing a fresh
// session on next use. Call after credentials or base URL change.
func (p *Pool) Invalidate(controllerID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, controllerID)
}

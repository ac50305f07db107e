package unifi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/guonaihong/gout"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/netopshq/switchyard/internal/domain"
)

var jsonx = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrDeviceNotFound is returned when no device on the site matches the
// requested id or MAC.
var ErrDeviceNotFound = errors.New("device not found on site")

// Client talks to one controller for one site. Authentication is
// cookie-based; a session is established lazily and re-established once on a
// 401 before an operation is reported as failed.
type Client struct {
	baseURL  string
	siteName string
	username string
	password string
	hc       *http.Client

	mu       sync.Mutex
	loggedIn bool
}

func NewClient(c *domain.Controller) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL:  strings.TrimRight(c.BaseURL, "/"),
		siteName: c.SiteName,
		username: c.Username,
		password: c.Password,
		hc: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: !c.VerifySSL},
			},
		},
	}
}

// SiteName returns the controller site this client serves.
func (c *Client) SiteName() string {
	return c.siteName
}

// Login opens a controller session.
func (c *Client) Login(ctx context.Context) error {
	code := 0
	err := gout.New(c.hc).
		POST(c.baseURL + "/api/login").
		WithContext(ctx).
		SetJSON(gout.H{
			"username": c.username,
			"password": c.password,
			"remember": true,
		}).
		Code(&code).
		Do()
	if err != nil {
		return errors.Wrap(err, "controller login")
	}
	if code != http.StatusOK {
		return errors.Errorf("controller login rejected: status %d", code)
	}
	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()
	zap.L().Debug("controller session opened", zap.String("site", c.siteName))
	return nil
}

func (c *Client) ensureLogin(ctx context.Context) error {
	c.mu.Lock()
	ok := c.loggedIn
	c.mu.Unlock()
	if ok {
		return nil
	}
	return c.Login(ctx)
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.loggedIn = false
	c.mu.Unlock()
}

// call performs one authenticated controller request, retrying once after
// re-login when the session cookie has expired. body may be nil; out may be
// nil for writes whose response data is irrelevant.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.ensureLogin(ctx); err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		code := 0
		var env apiEnvelope
		df := gout.New(c.hc)
		var flow = df.GET(c.baseURL + path)
		switch method {
		case http.MethodPost:
			flow = df.POST(c.baseURL + path)
		case http.MethodPut:
			flow = df.PUT(c.baseURL + path)
		}
		flow = flow.WithContext(ctx)
		if body != nil {
			flow = flow.SetJSON(body)
		}
		err := flow.Code(&code).BindJSON(&env).Do()
		if err != nil {
			return errors.Wrapf(err, "controller %s %s", method, path)
		}
		if code == http.StatusUnauthorized && attempt == 0 {
			c.invalidate()
			if err := c.Login(ctx); err != nil {
				return err
			}
			continue
		}
		if code != http.StatusOK {
			return errors.Errorf("controller %s %s: status %d %s", method, path, code, env.Meta.Msg)
		}
		if env.Meta.Rc != "" && env.Meta.Rc != "ok" {
			return errors.Errorf("controller %s %s: %s", method, path, env.Meta.Msg)
		}
		if out != nil && len(env.Data) > 0 {
			if err := jsonx.Unmarshal(env.Data, out); err != nil {
				return errors.Wrapf(err, "controller %s %s: decode response", method, path)
			}
		}
		return nil
	}
}

// Sites lists the sites hosted on this controller.
func (c *Client) Sites(ctx context.Context) ([]Site, error) {
	var sites []Site
	if err := c.call(ctx, http.MethodGet, "/api/self/sites", nil, &sites); err != nil {
		return nil, err
	}
	return sites, nil
}

// Devices lists all managed devices on the site.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var devices []Device
	path := "/api/s/" + c.siteName + "/stat/device"
	if err := c.call(ctx, http.MethodGet, path, nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// DeviceByID finds a device by controller id or MAC.
func (c *Client) DeviceByID(ctx context.Context, id string) (*Device, error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(id)
	for i := range devices {
		if devices[i].ID == id || strings.ToLower(devices[i].Mac) == want {
			return &devices[i], nil
		}
	}
	return nil, ErrDeviceNotFound
}

// Reboot asks the controller to restart a device.
func (c *Client) Reboot(ctx context.Context, mac string) error {
	path := "/api/s/" + c.siteName + "/cmd/devmgr"
	return c.call(ctx, http.MethodPost, path, gout.H{
		"cmd": "restart",
		"mac": strings.ToLower(mac),
	}, nil)
}

// setPortOverrides replaces a device's full override list. The controller
// applies the change on the device's next inform.
func (c *Client) setPortOverrides(ctx context.Context, deviceMongoID string, overrides []json.RawMessage) error {
	path := "/api/s/" + c.siteName + "/rest/device/" + deviceMongoID
	return c.call(ctx, http.MethodPut, path, map[string]interface{}{
		"port_overrides": overrides,
	}, nil)
}

// WaitDeviceOnline polls until the device reports connected again or the
// window elapses.
func (c *Client) WaitDeviceOnline(ctx context.Context, id string, window, poll time.Duration) bool {
	deadline := time.Now().Add(window)
	for {
		dev, err := c.DeviceByID(ctx, id)
		if err == nil && dev.Online() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		t := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
}

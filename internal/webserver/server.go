package webserver

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// AppContextKey is where the application context is stashed on each request.
const AppContextKey = "appctx"

// CustomValidator adapts go-playground/validator to echo's Validator hook.
type CustomValidator struct {
	validate *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validate.Struct(i)
}

type WebServer struct {
	root *echo.Echo
	api  *echo.Group
}

var server *WebServer

// Init builds the echo instance and the /api/v1 group. appCtx is injected
// into every request so handlers resolve it without package cycles.
func Init(appCtx interface{}, debug bool) *WebServer {
	e := echo.New()
	e.HideBanner = true
	e.Debug = debug
	e.Validator = &CustomValidator{validate: validator.New()}

	e.Use(middleware.Recover())
	e.Use(ZapLogger())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(AppContextKey, appCtx)
			return next(c)
		}
	})

	server = &WebServer{
		root: e,
		api:  e.Group("/api/v1"),
	}
	return server
}

// ZapLogger logs one line per request through the global zap logger.
func ZapLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			res := c.Response()
			zap.L().Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", res.Status),
				zap.String("remote", c.RealIP()),
				zap.Duration("latency", time.Since(start)),
			)
			return nil
		}
	}
}

// ApiGET registers a GET handler under /api/v1
func ApiGET(path string, h echo.HandlerFunc) {
	server.api.GET(path, h)
}

// ApiPOST registers a POST handler under /api/v1
func ApiPOST(path string, h echo.HandlerFunc) {
	server.api.POST(path, h)
}

// ApiPUT registers a PUT handler under /api/v1
func ApiPUT(path string, h echo.HandlerFunc) {
	server.api.PUT(path, h)
}

// ApiDELETE registers a DELETE handler under /api/v1
func ApiDELETE(path string, h echo.HandlerFunc) {
	server.api.DELETE(path, h)
}

// Start blocks serving until the listener fails or Shutdown is called.
func Start(host string, port int) error {
	return server.root.Start(fmt.Sprintf("%s:%d", host, port))
}

// Shutdown drains in-flight requests and stops the listener.
func Shutdown(ctx context.Context) error {
	if server == nil {
		return nil
	}
	return server.root.Shutdown(ctx)
}

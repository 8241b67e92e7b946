package middleware

import (
	"context"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/queue"
	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/storage"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/common"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/query"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"

	"github.com/labstack/echo/v4"
)

// Registrar records uploaded documents before they are queued.
type Registrar interface {
	Register(ctx context.Context, doc common.Document) (common.DocumentStatus, error)
}

// App holds everything request handlers need.
type App struct {
	Engine     *query.Engine
	Store      store.Store
	Files      storage.FileStore
	Registrar  Registrar
	Dispatcher queue.Dispatcher
}

type AppContext struct {
	echo.Context
	App *App
}

// AppContextMiddleware wraps every request context so handlers can reach
// app through c.(*AppContext).
func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}

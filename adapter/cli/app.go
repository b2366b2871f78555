package cli

import (
	"github.com/google/uuid"

	"github.com/calloutapp/callout/internal/app"
)

// App holds the CLI application dependencies.
type App struct {
	Container *app.Container

	// CurrentOrgID scopes every command to one organization.
	CurrentOrgID uuid.UUID
}

var appInstance *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	appInstance = a
}

// GetApp returns the global CLI application instance, nil when running
// without a database connection.
func GetApp() *App {
	return appInstance
}

package handler

const (
	// RootPath is the root path the route group.
	RootPath = "/"

	// ErrNilACBFatalLogMsg is used if app or cfg or broker var pointer is nil.
	ErrNilACBFatalLogMsg = "app, cfg or broker is nil"
)

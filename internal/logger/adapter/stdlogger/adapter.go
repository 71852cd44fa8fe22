// Package stdlogger adapts the global zerolog logger to printf-style
// logging interfaces as expected by libraries like GORM or the standard
// library log package.
package stdlogger

import (
	"github.com/rs/zerolog/log"
)

// Adapter forwards printf-style calls to the global zerolog logger.
type Adapter struct{}

// New creates a new printf-style adapter.
func New() *Adapter {
	return &Adapter{}
}

// Printf logs at info level. This satisfies gorm's logger.Writer.
func (a *Adapter) Printf(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

// Debugf logs at debug level.
func (a *Adapter) Debugf(format string, v ...any) {
	log.Debug().Msgf(format, v...)
}

// Infof logs at info level.
func (a *Adapter) Infof(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

// Warningf logs at warn level.
func (a *Adapter) Warningf(format string, v ...any) {
	log.Warn().Msgf(format, v...)
}

// Errorf logs at error level.
func (a *Adapter) Errorf(format string, v ...any) {
	log.Error().Msgf(format, v...)
}

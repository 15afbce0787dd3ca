package transport

import (
	"go.uber.org/zap"

	"github.com/luma/samplecast/storage"
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on
	Port int

	// Reuseport controls setting SO_REUSEPORT. Without it only a single
	// listener can be started.
	Reuseport bool

	// Trace logs every request at debug level. This is only useful in local debugging
	Trace bool

	NumListeners int

	Store storage.Store

	Log *zap.Logger
}

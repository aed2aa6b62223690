package pubsub

import (
	"github.com/rs/zerolog"

	pkglog "github.com/ylxai/Hafiportrait-sub001/pkg/log"
)

func logger() zerolog.Logger {
	return pkglog.L().With().Str("component", "pubsub").Logger()
}

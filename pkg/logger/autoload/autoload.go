// Package autoload initialises the global logger from LOG_* environment variables when imported.
package autoload

import (
	configx "github.com/tanpawarit/bingwa/pkg/config"
	logx "github.com/tanpawarit/bingwa/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}

package autoload

import (
	"github.com/kelseyhightower/envconfig"

	logx "github.com/ppec-ai/copilot/pkg/logger"
)

// Blank-import this package to initialize the global logger from LOG_*
// environment variables before main runs.
func init() {
	var conf logx.Config
	if err := envconfig.Process("LOG", &conf); err != nil {
		conf = logx.Config{Level: "info"}
	}
	logx.Init(conf)
}

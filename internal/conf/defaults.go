// defaults.go: viper default values for all settings.
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers default values with viper. Called before
// reading the config file so that file and environment values win.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main
	viper.SetDefault("main.name", "sentinel-central")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/sentinel.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 100*1024*1024)

	// Bus
	viper.SetDefault("bus.broker", "tcp://localhost:1883")
	viper.SetDefault("bus.username", "")
	viper.SetDefault("bus.password", "")
	viper.SetDefault("bus.handlertimeout", 30*time.Second)
	viper.SetDefault("bus.qos", 1)

	// Resolver thresholds
	viper.SetDefault("resolver.tausame", 0.22)
	viper.SetDefault("resolver.tauambig", 0.30)
	viper.SetDefault("resolver.deltamin", 0.05)
	viper.SetDefault("resolver.emaalpha", 0.2)

	// Media
	viper.SetDefault("media.root", "media")

	// Output database
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "sentinel.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "sentinel")
	viper.SetDefault("output.mysql.password", "sentinel")
	viper.SetDefault("output.mysql.database", "sentinel")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	// Web server
	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8100")
	viper.SetDefault("webserver.insightcachettl", 2*time.Second)
}

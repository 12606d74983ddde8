// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/fifostream.log")
	viper.SetDefault("logging.fileoutput.level", "debug")

	viper.SetDefault("pool.chunks", 30)
	viper.SetDefault("pool.chunksize", 512)
	viper.SetDefault("pool.backing", "heap")
	viper.SetDefault("pool.releasetimeout", 10*time.Millisecond)

	viper.SetDefault("stream.txqueuedepth", 30)
	viper.SetDefault("stream.rxqueuedepth", 30)
	viper.SetDefault("stream.txenqueuetimeout", 100*time.Millisecond)
	viper.SetDefault("stream.txfullpolicy", "retry")
	viper.SetDefault("stream.vacancytimeout", 50*time.Millisecond)
	viper.SetDefault("stream.datashift", 16)
	viper.SetDefault("stream.receive", false)
	viper.SetDefault("stream.loginterval", time.Second)

	viper.SetDefault("fifo.backend", "sim")
	viper.SetDefault("fifo.baseaddr", 0x43C00000)
	viper.SetDefault("fifo.uiodevice", "/dev/uio0")
	viper.SetDefault("fifo.sim.depth", 512)
	viper.SetDefault("fifo.sim.txemptythreshold", 64)
	viper.SetDefault("fifo.sim.rxfullthreshold", 96)
	viper.SetDefault("fifo.sim.samplerate", 48000)
	viper.SetDefault("fifo.sim.loopback", false)
	viper.SetDefault("fifo.sim.capture", true)

	viper.SetDefault("player.mode", "playback")
	viper.SetDefault("player.wav", "")
	viper.SetDefault("player.loop", true)
	viper.SetDefault("player.record", "capture.wav")
	viper.SetDefault("player.samplerate", 48000)
	viper.SetDefault("player.tonefreq", 1000)
	viper.SetDefault("player.toneamplitude", 0.5)
	viper.SetDefault("player.statsinterval", 10*time.Second)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "localhost:9090")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")
	viper.SetDefault("telemetry.environment", "production")
}

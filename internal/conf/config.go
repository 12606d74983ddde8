package conf

import (
	"embed"
	"io/fs"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings is the complete application configuration
type Settings struct {
	Debug bool `yaml:"debug"` // true to enable debug logging everywhere

	Logging   logger.LoggingConfig `yaml:"logging"`
	Pool      PoolSettings         `yaml:"pool"`
	Stream    StreamSettings       `yaml:"stream"`
	FIFO      FIFOSettings         `yaml:"fifo"`
	Player    PlayerSettings       `yaml:"player"`
	Metrics   MetricsSettings      `yaml:"metrics"`
	Telemetry TelemetrySettings    `yaml:"telemetry"`
}

// PoolSettings sizes the chunk pool
type PoolSettings struct {
	Chunks         int           `yaml:"chunks"`         // number of chunks
	ChunkSize      int           `yaml:"chunksize"`      // bytes per chunk, multiple of 4
	Backing        string        `yaml:"backing"`        // heap or mmap
	ReleaseTimeout time.Duration `yaml:"releasetimeout"` // bounded task-context release wait
}

// StreamSettings tunes the streaming engine
type StreamSettings struct {
	TxQueueDepth     int           `yaml:"txqueuedepth"`
	RxQueueDepth     int           `yaml:"rxqueuedepth"`
	TxEnqueueTimeout time.Duration `yaml:"txenqueuetimeout"` // per attempt
	TxFullPolicy     string        `yaml:"txfullpolicy"`     // retry or drop
	VacancyTimeout   time.Duration `yaml:"vacancytimeout"`   // synchronous vacancy spin bound
	DataShift        uint          `yaml:"datashift"`        // sample slot position in a FIFO word
	Receive          bool          `yaml:"receive"`          // enable the receive path
	LogInterval      time.Duration `yaml:"loginterval"`      // interrupt-context warning spacing
}

// FIFOSettings selects and describes the FIFO backend
type FIFOSettings struct {
	Backend   string      `yaml:"backend"`   // sim or mmio
	BaseAddr  uint64      `yaml:"baseaddr"`  // physical register base for mmio
	UIODevice string      `yaml:"uiodevice"` // interrupt device for mmio
	Sim       SimSettings `yaml:"sim"`
}

// SimSettings configures the simulated FIFO
type SimSettings struct {
	Depth            int  `yaml:"depth"`
	TxEmptyThreshold int  `yaml:"txemptythreshold"`
	RxFullThreshold  int  `yaml:"rxfullthreshold"`
	SampleRate       int  `yaml:"samplerate"`
	Loopback         bool `yaml:"loopback"`
	Capture          bool `yaml:"capture"`
}

// PlayerSettings configures the application task
type PlayerSettings struct {
	Mode          string        `yaml:"mode"`          // playback, loopback or record
	WAV           string        `yaml:"wav"`           // playback file; empty plays a tone
	Loop          bool          `yaml:"loop"`          // loop the playback source
	Record        string        `yaml:"record"`        // record mode output file
	SampleRate    int           `yaml:"samplerate"`    // record file sample rate
	ToneFreq      int           `yaml:"tonefreq"`      // Hz
	ToneAmplitude float64       `yaml:"toneamplitude"` // fraction of full scale
	StatsInterval time.Duration `yaml:"statsinterval"`
}

// MetricsSettings controls the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // host:port
}

// TelemetrySettings controls Sentry error reporting
type TelemetrySettings struct {
	Enabled     bool   `yaml:"enabled"`
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the configuration file and environment variables
// into a validated Settings. configFile may be empty to search the default
// paths; a missing file there is not an error.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("config").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("config").
			Category(errors.CategoryValidation).
			Context("operation", "validate").
			Build()
	}

	settingsInstance = settings
	return settings, nil
}

// initViper registers defaults and env bindings, then reads the config file
func initViper(configFile string) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		GetLogger().Warn("environment configuration ignored", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range configPaths {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			GetLogger().Info("no config file found, using defaults")
			return nil
		}
		return errors.New(err).
			Component("config").
			Category(errors.CategoryFileIO).
			Context("operation", "read_config").
			Context("path", configFile).
			Build()
	}

	GetLogger().Debug("config file loaded", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetDefaultConfig returns the embedded reference configuration
func GetDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, errors.New(err).
			Component("config").
			Category(errors.CategoryFileIO).
			Context("operation", "read_embedded_config").
			Build()
	}
	return data, nil
}

// GetSettings returns the settings of the last successful Load
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

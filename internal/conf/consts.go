package conf

// Accepted values for enumerated settings
const (
	BackendSim  = "sim"
	BackendMMIO = "mmio"

	ModePlayback = "playback"
	ModeLoopback = "loopback"
	ModeRecord   = "record"

	TxFullPolicyRetry = "retry"
	TxFullPolicyDrop  = "drop"

	BackingHeap = "heap"
	BackingMmap = "mmap"
)

const (
	configFileName = "config.yaml"
	appDirName     = "fifostream"

	// ConfigFilePermissions is the mode for written config files
	ConfigFilePermissions = 0o644
	configDirPermissions  = 0o755

	// upper bounds that catch typos before they become allocations
	maxPoolChunks = 1 << 16
	maxChunkSize  = 1 << 20
	maxDataShift  = 16
)

// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validatePoolSettings(&settings.Pool)...)
	ve.Errors = append(ve.Errors, validateStreamSettings(&settings.Stream)...)
	ve.Errors = append(ve.Errors, validateFIFOSettings(&settings.FIFO)...)
	ve.Errors = append(ve.Errors, validatePlayerSettings(&settings.Player)...)
	ve.Errors = append(ve.Errors, validateMetricsSettings(&settings.Metrics)...)

	if settings.Telemetry.Enabled && settings.Telemetry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry enabled without a dsn")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validatePoolSettings(p *PoolSettings) []string {
	var errs []string
	if p.Chunks <= 0 || p.Chunks > maxPoolChunks {
		errs = append(errs, fmt.Sprintf("pool.chunks must be between 1 and %d, got %d", maxPoolChunks, p.Chunks))
	}
	if p.ChunkSize <= 0 || p.ChunkSize > maxChunkSize || p.ChunkSize%4 != 0 {
		errs = append(errs, fmt.Sprintf("pool.chunksize must be a positive multiple of 4 up to %d, got %d", maxChunkSize, p.ChunkSize))
	}
	if p.Backing != BackingHeap && p.Backing != BackingMmap {
		errs = append(errs, fmt.Sprintf("pool.backing must be heap or mmap, got %q", p.Backing))
	}
	if p.ReleaseTimeout < 0 {
		errs = append(errs, "pool.releasetimeout must not be negative")
	}
	return errs
}

func validateStreamSettings(s *StreamSettings) []string {
	var errs []string
	if s.TxQueueDepth <= 0 {
		errs = append(errs, "stream.txqueuedepth must be positive")
	}
	if s.RxQueueDepth <= 0 {
		errs = append(errs, "stream.rxqueuedepth must be positive")
	}
	if s.TxEnqueueTimeout <= 0 {
		errs = append(errs, "stream.txenqueuetimeout must be positive")
	}
	if s.VacancyTimeout <= 0 {
		errs = append(errs, "stream.vacancytimeout must be positive")
	}
	if s.TxFullPolicy != TxFullPolicyRetry && s.TxFullPolicy != TxFullPolicyDrop {
		errs = append(errs, fmt.Sprintf("stream.txfullpolicy must be retry or drop, got %q", s.TxFullPolicy))
	}
	if s.DataShift > maxDataShift {
		errs = append(errs, fmt.Sprintf("stream.datashift must be at most %d, got %d", maxDataShift, s.DataShift))
	}
	return errs
}

func validateFIFOSettings(f *FIFOSettings) []string {
	var errs []string
	switch f.Backend {
	case BackendSim:
		sim := f.Sim
		if sim.Depth <= 0 {
			errs = append(errs, "fifo.sim.depth must be positive")
		}
		if sim.TxEmptyThreshold < 0 || sim.TxEmptyThreshold >= sim.Depth {
			errs = append(errs, "fifo.sim.txemptythreshold must be below the depth")
		}
		if sim.RxFullThreshold <= 0 || sim.RxFullThreshold > sim.Depth {
			errs = append(errs, "fifo.sim.rxfullthreshold must be between 1 and the depth")
		}
		if sim.SampleRate <= 0 {
			errs = append(errs, "fifo.sim.samplerate must be positive")
		}
	case BackendMMIO:
		if f.BaseAddr == 0 {
			errs = append(errs, "fifo.baseaddr is required for the mmio backend")
		}
		if f.UIODevice == "" {
			errs = append(errs, "fifo.uiodevice is required for the mmio backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("fifo.backend must be sim or mmio, got %q", f.Backend))
	}
	return errs
}

func validatePlayerSettings(p *PlayerSettings) []string {
	var errs []string
	if !slices.Contains([]string{ModePlayback, ModeLoopback, ModeRecord}, p.Mode) {
		errs = append(errs, fmt.Sprintf("player.mode must be playback, loopback or record, got %q", p.Mode))
	}
	if p.Mode == ModeRecord && p.Record == "" {
		errs = append(errs, "player.record is required in record mode")
	}
	if p.Mode == ModePlayback && p.WAV == "" {
		if p.ToneFreq <= 0 {
			errs = append(errs, "player.tonefreq must be positive")
		}
		if p.ToneAmplitude <= 0 || p.ToneAmplitude > 1 {
			errs = append(errs, "player.toneamplitude must be in (0, 1]")
		}
	}
	if p.SampleRate <= 0 {
		errs = append(errs, "player.samplerate must be positive")
	}
	if p.StatsInterval <= 0 {
		errs = append(errs, "player.statsinterval must be positive")
	}
	return errs
}

func validateMetricsSettings(m *MetricsSettings) []string {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		return []string{fmt.Sprintf("metrics.listen %q: %v", m.Listen, err)}
	}
	return nil
}

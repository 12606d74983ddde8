package sample

import (
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/fifostream/internal/chunk"
	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/logger"
)

// WAV output format
const (
	WAVBitDepth  = 16
	wavPCMFormat = 1
	wavChannels  = 1
	wavDirPerm   = 0o755
	wavFilePerm  = 0o644
)

// WAVInfo describes a decoded file
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int
}

// LoadWAV decodes a PCM WAV file into a table source. Only the first
// channel is kept; 24 and 32-bit samples are truncated to 16 bits.
func LoadWAV(path string, loop bool) (*Table, WAVInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, WAVInfo{}, errors.New(err).
			Component("sample").
			Category(errors.CategoryFileIO).
			Context("operation", "open_wav").
			Context("path", path).
			Build()
	}
	defer func() { _ = file.Close() }()

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, WAVInfo{}, errors.Newf("%s is not a valid WAV file", filepath.Base(path)).
			Component("sample").
			Category(errors.CategoryValidation).
			Context("operation", "decode_wav").
			Build()
	}

	depth := int(decoder.BitDepth)
	if depth != 16 && depth != 24 && depth != 32 {
		return nil, WAVInfo{}, errors.Newf("unsupported bit depth: %d", depth).
			Component("sample").
			Category(errors.CategoryValidation).
			Context("operation", "decode_wav").
			Build()
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, WAVInfo{}, errors.New(err).
			Component("sample").
			Category(errors.CategoryFileIO).
			Context("operation", "decode_wav").
			Context("path", path).
			Build()
	}

	chans := max(int(decoder.NumChans), 1)
	shift := depth - WAVBitDepth
	frames := len(buf.Data) / chans
	slots := make([]uint32, frames)
	for i := range slots {
		slots[i] = Slot(int16(buf.Data[i*chans] >> shift))
	}

	info := WAVInfo{
		SampleRate: int(decoder.SampleRate),
		Channels:   chans,
		BitDepth:   depth,
		Frames:     frames,
	}
	GetLogger().Debug("wav loaded",
		logger.String("path", path),
		logger.Int("sample_rate", info.SampleRate),
		logger.Int("channels", info.Channels),
		logger.Int("bit_depth", info.BitDepth),
		logger.Int("frames", info.Frames),
		logger.Bool("loop", loop))

	return NewTable(slots, loop), info, nil
}

// Sink consumes received chunks
type Sink interface {
	Write(c *chunk.Chunk) error
	Close() error
}

// WAVSink records received chunks as 16-bit mono PCM
type WAVSink struct {
	file   *os.File
	enc    *wav.Encoder
	buf    *audio.IntBuffer
	frames int
}

// NewWAVSink creates path, including missing directories, and writes a WAV
// header for sampleRate
func NewWAVSink(path string, sampleRate int) (*WAVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), wavDirPerm); err != nil {
		return nil, errors.New(err).
			Component("sample").
			Category(errors.CategoryFileIO).
			Context("operation", "create_wav_dir").
			Context("path", path).
			Build()
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, wavFilePerm)
	if err != nil {
		return nil, errors.New(err).
			Component("sample").
			Category(errors.CategoryFileIO).
			Context("operation", "create_wav").
			Context("path", path).
			Build()
	}

	return &WAVSink{
		file: file,
		enc:  wav.NewEncoder(file, sampleRate, WAVBitDepth, wavChannels, wavPCMFormat),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: sampleRate, NumChannels: wavChannels},
			SourceBitDepth: WAVBitDepth,
		},
	}, nil
}

// Write appends the samples of c
func (s *WAVSink) Write(c *chunk.Chunk) error {
	slots := c.Uint32()[:c.Samples()]
	if len(slots) == 0 {
		return nil
	}

	data := s.buf.Data[:0]
	for _, slot := range slots {
		data = append(data, int(Value(slot)))
	}
	s.buf.Data = data

	if err := s.enc.Write(s.buf); err != nil {
		return errors.New(err).
			Component("sample").
			Category(errors.CategoryFileIO).
			Context("operation", "write_wav").
			Build()
	}
	s.frames += len(slots)
	return nil
}

// Frames returns the number of samples written so far
func (s *WAVSink) Frames() int { return s.frames }

// Close finalizes the header and closes the file
func (s *WAVSink) Close() error {
	encErr := s.enc.Close()
	fileErr := s.file.Close()
	if err := errors.Join(encErr, fileErr); err != nil {
		return errors.New(err).
			Component("sample").
			Category(errors.CategoryFileIO).
			Context("operation", "close_wav").
			Build()
	}
	return nil
}

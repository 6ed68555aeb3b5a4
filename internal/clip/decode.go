// Package clip replays recorded audio files as an activity sampler so the
// debounce settings can be tried without live playback.
package clip

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// Decoding errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported clip format")
	ErrNotWAV            = errors.New("not a valid wav file")
	ErrEmptyClip         = errors.New("clip contains no audio")
)

// Supported formats, by file extension.
const (
	FormatWAV = "wav"
	FormatMP3 = "mp3"
	FormatOGG = "ogg"
)

// readBufferSamples is the number of interleaved values decoded per read.
const readBufferSamples = 8192

// Envelope is the peak level of a clip, one value per tick.
type Envelope struct {
	Format     string
	SampleRate int
	Channels   int
	Tick       time.Duration
	Duration   time.Duration
	Peaks      []float64 // linear peak 0..1 per tick
}

// sampleReader yields interleaved samples normalized to -1..1.
type sampleReader interface {
	SampleRate() int
	Channels() int
	ReadSamples(dst []float64) (int, error)
}

// FormatFromPath returns the clip format for a file name.
func FormatFromPath(path string) (string, error) {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "wav", "wave":
		return FormatWAV, nil
	case "mp3":
		return FormatMP3, nil
	case "ogg", "oga":
		return FormatOGG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Load decodes the file at path into an envelope with the given tick.
func Load(path string, tick time.Duration) (*Envelope, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, util.WrapError("open clip", err)
	}
	defer util.SafeCloseFunc(f, "clip file")()

	return Decode(f, format, tick)
}

// Decode reads a clip in the given format into an envelope.
func Decode(r io.ReadSeeker, format string, tick time.Duration) (*Envelope, error) {
	if tick <= 0 {
		tick = time.Second
	}

	var src sampleReader
	var err error
	switch format {
	case FormatWAV:
		src, err = newWAVReader(r)
	case FormatMP3:
		src, err = newMP3Reader(r)
	case FormatOGG:
		src, err = newOGGReader(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	env, err := buildEnvelope(src, tick)
	if err != nil {
		return nil, err
	}
	env.Format = format
	return env, nil
}

// buildEnvelope folds samples into per-tick peaks. A trailing partial tick
// is kept.
func buildEnvelope(src sampleReader, tick time.Duration) (*Envelope, error) {
	rate, channels := src.SampleRate(), src.Channels()
	if rate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid clip format: %d Hz, %d channels", rate, channels)
	}

	framesPerTick := max(int(int64(rate)*int64(tick)/int64(time.Second)), 1)
	samplesPerTick := framesPerTick * channels

	env := &Envelope{SampleRate: rate, Channels: channels, Tick: tick}
	buf := make([]float64, readBufferSamples)
	var peak float64
	var inTick, total int

	for {
		n, err := src.ReadSamples(buf)
		for _, v := range buf[:n] {
			if v < 0 {
				v = -v
			}
			peak = max(peak, v)
			inTick++
			if inTick == samplesPerTick {
				env.Peaks = append(env.Peaks, min(peak, 1))
				peak, inTick = 0, 0
			}
		}
		total += n

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || (n == 0 && err == nil) {
			break
		}
		if err != nil {
			return nil, util.WrapError("decode clip", err)
		}
	}

	if inTick > 0 {
		env.Peaks = append(env.Peaks, min(peak, 1))
	}
	if total == 0 {
		return nil, ErrEmptyClip
	}

	env.Duration = time.Duration(int64(total/channels) * int64(time.Second) / int64(rate))
	return env, nil
}

// wavReader adapts the go-audio wav decoder.
type wavReader struct {
	dec       *wav.Decoder
	buf       *goaudio.IntBuffer
	fullScale float64
	rate      int
	channels  int
}

func newWAVReader(r io.ReadSeeker) (*wavReader, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	dec.ReadInfo()

	format := dec.Format()
	if format == nil || dec.BitDepth == 0 {
		return nil, ErrNotWAV
	}

	return &wavReader{
		dec:       dec,
		buf:       &goaudio.IntBuffer{Data: make([]int, readBufferSamples), Format: format},
		fullScale: float64(int64(1) << (dec.BitDepth - 1)),
		rate:      format.SampleRate,
		channels:  format.NumChannels,
	}, nil
}

func (w *wavReader) SampleRate() int { return w.rate }
func (w *wavReader) Channels() int   { return w.channels }

func (w *wavReader) ReadSamples(dst []float64) (int, error) {
	if len(w.buf.Data) > len(dst) {
		w.buf.Data = w.buf.Data[:len(dst)]
	}
	n, err := w.dec.PCMBuffer(w.buf)
	for i := range n {
		dst[i] = float64(w.buf.Data[i]) / w.fullScale
	}
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}

// mp3Reader adapts go-mp3, which always yields 16-bit stereo.
type mp3Reader struct {
	dec *gomp3.Decoder
	buf []byte
}

func newMP3Reader(r io.Reader) (*mp3Reader, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, util.WrapError("open mp3", err)
	}
	return &mp3Reader{dec: dec}, nil
}

func (m *mp3Reader) SampleRate() int { return m.dec.SampleRate() }
func (m *mp3Reader) Channels() int   { return 2 }

func (m *mp3Reader) ReadSamples(dst []float64) (int, error) {
	need := len(dst) * 2
	if cap(m.buf) < need {
		m.buf = make([]byte, need)
	}
	m.buf = m.buf[:need]

	n, err := m.dec.Read(m.buf)
	samples := n / 2
	for i := range samples {
		v := int16(uint16(m.buf[2*i]) | uint16(m.buf[2*i+1])<<8)
		dst[i] = float64(v) / 32768.0
	}
	return samples, err
}

// oggReader adapts the oggvorbis reader.
type oggReader struct {
	dec *oggvorbis.Reader
	buf []float32
}

func newOGGReader(r io.Reader) (*oggReader, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, util.WrapError("open ogg vorbis", err)
	}
	return &oggReader{dec: dec}, nil
}

func (o *oggReader) SampleRate() int { return o.dec.SampleRate() }
func (o *oggReader) Channels() int   { return o.dec.Channels() }

func (o *oggReader) ReadSamples(dst []float64) (int, error) {
	// Whole frames only.
	want := len(dst) - len(dst)%max(o.dec.Channels(), 1)
	if cap(o.buf) < want {
		o.buf = make([]float32, want)
	}
	o.buf = o.buf[:want]

	n, err := o.dec.Read(o.buf)
	for i := range n {
		dst[i] = float64(o.buf[i])
	}
	return n, err
}

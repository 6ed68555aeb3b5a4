// Package audio captures the host's playback audio and reports whether
// anything is currently playing.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// MinDB is the minimum dB level (silence).
	MinDB = -60.0
	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0
	// ClipThreshold is slightly below max to catch near-clips.
	ClipThreshold int16 = 32760
)

// LevelData holds raw sample accumulator data for level calculation.
type LevelData struct {
	SumSquaresL float64
	SumSquaresR float64
	PeakL       float64
	PeakR       float64
	ClipCountL  int
	ClipCountR  int
	SampleCount int
}

// ProcessSamples processes S16LE stereo PCM data and accumulates level data.
func ProcessSamples(buf []byte, n int, data *LevelData) {
	for i := 0; i+3 < n; i += BytesPerFrame {
		leftSample := int16(binary.LittleEndian.Uint16(buf[i:]))
		rightSample := int16(binary.LittleEndian.Uint16(buf[i+2:]))
		data.Add(float64(leftSample), float64(rightSample))

		if leftSample >= ClipThreshold || leftSample <= -ClipThreshold {
			data.ClipCountL++
		}
		if rightSample >= ClipThreshold || rightSample <= -ClipThreshold {
			data.ClipCountR++
		}
	}
}

// Add accumulates one stereo frame given in 16-bit sample units.
func (d *LevelData) Add(left, right float64) {
	d.SumSquaresL += left * left
	d.SumSquaresR += right * right
	d.PeakL = max(d.PeakL, math.Abs(left))
	d.PeakR = max(d.PeakR, math.Abs(right))
	d.SampleCount++
}

// LinearPeak returns the highest absolute sample over both channels,
// scaled to 0..1.
func (d *LevelData) LinearPeak() float64 {
	return min(max(d.PeakL, d.PeakR)/MaxSampleValue, 1)
}

// Levels contains calculated audio levels in dB.
type Levels struct {
	RMSLeft   float64
	RMSRight  float64
	PeakLeft  float64
	PeakRight float64
	ClipLeft  int
	ClipRight int
}

// CalculateLevels computes RMS and peak levels from accumulated sample data.
func CalculateLevels(data *LevelData) Levels {
	if data.SampleCount == 0 {
		return Levels{
			RMSLeft: MinDB, RMSRight: MinDB,
			PeakLeft: MinDB, PeakRight: MinDB,
		}
	}

	rmsL := math.Sqrt(data.SumSquaresL / float64(data.SampleCount))
	rmsR := math.Sqrt(data.SumSquaresR / float64(data.SampleCount))

	return Levels{
		RMSLeft:   toDB(rmsL),
		RMSRight:  toDB(rmsR),
		PeakLeft:  toDB(data.PeakL),
		PeakRight: toDB(data.PeakR),
		ClipLeft:  data.ClipCountL,
		ClipRight: data.ClipCountR,
	}
}

// toDB converts a 16-bit amplitude to dBFS, floored at MinDB.
func toDB(v float64) float64 {
	return max(20*math.Log10(v/MaxSampleValue), MinDB)
}

// Reset resets accumulators for the next measurement period.
func (d *LevelData) Reset() {
	*d = LevelData{}
}

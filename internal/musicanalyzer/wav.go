package musicanalyzer

import (
	"encoding/binary"
	"fmt"
	"os"
)

// decodedAudio is mono PCM samples normalized to [-1, 1] plus their sample
// rate. The pack carries no WAV-decoding library (see DESIGN.md), so this
// is a minimal RIFF/PCM16 reader — just enough to read the mono 22.05kHz
// files the Transcoder Gateway's TranscodeToWAV produces.
type decodedAudio struct {
	Samples    []float64
	SampleRate int
}

func readWAV(path string) (*decodedAudio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("musicanalyzer: not a RIFF/WAVE file: %s", path)
	}

	var (
		sampleRate    int
		bitsPerSample int
		numChannels   int
		dataStart     int
		dataLen       int
	)

	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(data) {
				return nil, fmt.Errorf("musicanalyzer: truncated fmt chunk")
			}
			numChannels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			dataStart = body
			dataLen = chunkSize
		}

		pos = body + chunkSize
		if chunkSize%2 == 1 {
			pos++
		}
	}

	if sampleRate == 0 || dataStart == 0 || bitsPerSample != 16 {
		return nil, fmt.Errorf("musicanalyzer: unsupported wav format (need 16-bit PCM) in %s", path)
	}
	if numChannels < 1 {
		numChannels = 1
	}
	if dataStart+dataLen > len(data) {
		dataLen = len(data) - dataStart
	}

	frameBytes := 2 * numChannels
	numFrames := dataLen / frameBytes
	samples := make([]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		frameOff := dataStart + i*frameBytes
		var sum int32
		for ch := 0; ch < numChannels; ch++ {
			sample := int16(binary.LittleEndian.Uint16(data[frameOff+ch*2 : frameOff+ch*2+2]))
			sum += int32(sample)
		}
		samples[i] = float64(sum) / float64(numChannels) / 32768.0
	}

	return &decodedAudio{Samples: samples, SampleRate: sampleRate}, nil
}

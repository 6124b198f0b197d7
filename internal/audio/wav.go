package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ChunkSampleRate is the pipeline-wide capture and persistence rate.
const ChunkSampleRate = 16000

const wavHeaderSize = 44

// WAVHeader represents the standard 44-byte header of a PCM WAV file.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// EncodeWAV encodes normalized float samples as a mono 16-bit PCM WAV
// file. Samples are clamped to [-1, 1] during conversion.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	pcm := Float32ToInt16(samples)

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(pcm) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(wavHeaderSize-8) + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, pcm); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeWAV decodes a mono 16-bit PCM WAV file back to normalized float
// samples, returning the samples and the file's sample rate.
func DecodeWAV(data []byte) ([]float32, int, error) {
	header, err := readWAVHeader(data)
	if err != nil {
		return nil, 0, err
	}

	numSamples := int(header.Subchunk2Size) / 2
	if numSamples <= 0 {
		return nil, 0, fmt.Errorf("no audio data found")
	}

	pcm := make([]int16, numSamples)
	buf := bytes.NewReader(data[wavHeaderSize:])
	if err := binary.Read(buf, binary.LittleEndian, pcm); err != nil {
		return nil, 0, fmt.Errorf("failed to read audio samples: %w", err)
	}

	return Int16ToFloat32(pcm), int(header.SampleRate), nil
}

// readWAVHeader parses and validates the fixed 44-byte header.
func readWAVHeader(data []byte) (*WAVHeader, error) {
	if len(data) < wavHeaderSize {
		return nil, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(header.Subchunk2ID[:]) != "data" {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if header.AudioFormat != 1 {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}
	if header.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}
	if header.NumChannels != 1 {
		return nil, fmt.Errorf("unsupported channel count: %d (only mono is supported)", header.NumChannels)
	}

	return &header, nil
}

// ValidateWAV checks the WAV container markers without decoding audio data.
func ValidateWAV(data []byte) error {
	_, err := readWAVHeader(data)
	return err
}

// GetWAVDuration calculates the duration of a WAV file in seconds.
func GetWAVDuration(data []byte) (float64, error) {
	header, err := readWAVHeader(data)
	if err != nil {
		return 0, err
	}
	if header.SampleRate == 0 {
		return 0, fmt.Errorf("invalid sample rate: 0")
	}

	numSamples := header.Subchunk2Size / 2
	return float64(numSamples) / float64(header.SampleRate), nil
}

// WAVInfo summarizes a WAV file's format for monitoring and diagnostics.
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// GetWAVInfo extracts metadata from a WAV file.
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	header, err := readWAVHeader(data)
	if err != nil {
		return nil, err
	}

	numSamples := header.Subchunk2Size / (uint32(header.BitsPerSample) / 8)
	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      float64(numSamples) / float64(header.SampleRate),
		DataSize:      header.Subchunk2Size,
		NumSamples:    numSamples,
	}, nil
}

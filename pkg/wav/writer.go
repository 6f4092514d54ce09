package wav

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	riffHeaderSize = 44
	bytesPerSample = 2 // PCM_16
)

// Encode writes a complete 16-bit PCM WAV file: the RIFF header
// followed by the given interleaved little-endian s16le payload.
func Encode(w io.Writer, pcm []byte, sampleRate int, channels int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if channels <= 0 {
		return fmt.Errorf("invalid amount of channels: %d", channels)
	}
	if len(pcm)%(bytesPerSample*channels) != 0 {
		return fmt.Errorf("the PCM payload size (%d) is not a multiple of the frame size (%d)", len(pcm), bytesPerSample*channels)
	}

	var header [riffHeaderSize]byte
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(riffHeaderSize-8+len(pcm)))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*channels*bytesPerSample))
	binary.LittleEndian.PutUint16(header[32:34], uint16(channels*bytesPerSample))
	binary.LittleEndian.PutUint16(header[34:36], 8*bytesPerSample)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("unable to write the WAV header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("unable to write the PCM payload: %w", err)
	}
	return nil
}

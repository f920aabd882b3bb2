// Package segsink writes finalized VAD segments to mono 16-bit PCM WAV
// files and prunes old recordings from the output directory.
package segsink

import (
	"bufio"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/sibukixxx/voicetypeless/internal/domainerr"
)

const writerBufferSize = 64 * 1024

// Sink writes segment audio to output_dir/<segment_id>.wav.
type Sink struct {
	outputDir string
}

// New creates a sink rooted at outputDir, creating it if necessary.
func New(outputDir string) (*Sink, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, domainerr.StorageWrap("failed to create segment output directory", err)
	}
	return &Sink{outputDir: outputDir}, nil
}

// Write encodes samples as mono 16-bit PCM WAV and returns the path.
func (s *Sink) Write(segmentID string, samples []float32, sampleRate int) (string, error) {
	path := filepath.Join(s.outputDir, segmentID+".wav")

	f, err := os.Create(path)
	if err != nil {
		return "", domainerr.StorageWrap("failed to create wav file", err)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, writerBufferSize)
	if err := writeWav(w, samples, sampleRate); err != nil {
		return "", domainerr.StorageWrap("failed to write wav data", err)
	}
	if err := w.Flush(); err != nil {
		return "", domainerr.StorageWrap("failed to flush wav writer", err)
	}
	return path, nil
}

func writeWav(w *bufio.Writer, samples []float32, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	dataSize := len(samples) * 2
	chunkSize := 36 + dataSize
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	writes := []func() error{
		func() error { _, err := w.WriteString("RIFF"); return err },
		func() error { return binary.Write(w, binary.LittleEndian, uint32(chunkSize)) },
		func() error { _, err := w.WriteString("WAVE"); return err },
		func() error { _, err := w.WriteString("fmt "); return err },
		func() error { return binary.Write(w, binary.LittleEndian, uint32(16)) },
		func() error { return binary.Write(w, binary.LittleEndian, uint16(1)) },
		func() error { return binary.Write(w, binary.LittleEndian, uint16(numChannels)) },
		func() error { return binary.Write(w, binary.LittleEndian, uint32(sampleRate)) },
		func() error { return binary.Write(w, binary.LittleEndian, uint32(byteRate)) },
		func() error { return binary.Write(w, binary.LittleEndian, uint16(blockAlign)) },
		func() error { return binary.Write(w, binary.LittleEndian, uint16(bitsPerSample)) },
		func() error { _, err := w.WriteString("data"); return err },
		func() error { return binary.Write(w, binary.LittleEndian, uint32(dataSize)) },
	}
	for _, write := range writes {
		if err := write(); err != nil {
			return err
		}
	}

	for _, sample := range samples {
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		if err := binary.Write(w, binary.LittleEndian, int16(sample*32767)); err != nil {
			return err
		}
	}
	return nil
}

// CleanupOldSegments deletes .wav files older than maxAge and returns
// the count removed.
func (s *Sink) CleanupOldSegments(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return 0, domainerr.StorageWrap("failed to list segment output directory", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".wav" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.outputDir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// WAVFormat holds the fmt chunk fields of a PCM WAV file.
type WAVFormat struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// BytesPerSecond returns the data rate of the PCM stream.
func (f WAVFormat) BytesPerSecond() int {
	return int(f.SampleRate) * int(f.NumChannels) * int(f.BitsPerSample) / 8
}

// Duration returns the play time of n bytes of PCM data.
func (f WAVFormat) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// ReadWAV reads a RIFF/WAV stream and returns its format and raw PCM data.
// Only uncompressed 16-bit PCM is accepted.
func ReadWAV(r io.ReadSeeker) (WAVFormat, []byte, error) {
	var format WAVFormat

	var riff [4]byte
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return format, nil, fmt.Errorf("read RIFF ID: %w", err)
	}
	if string(riff[:]) != "RIFF" {
		return format, nil, errors.New("not a RIFF file")
	}
	var fileSize uint32
	if err := binary.Read(r, binary.LittleEndian, &fileSize); err != nil {
		return format, nil, fmt.Errorf("read file size: %w", err)
	}
	var wave [4]byte
	if err := binary.Read(r, binary.LittleEndian, &wave); err != nil {
		return format, nil, fmt.Errorf("read WAVE ID: %w", err)
	}
	if string(wave[:]) != "WAVE" {
		return format, nil, errors.New("not a WAVE file")
	}

	fmtFound := false
	for {
		var id [4]byte
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return format, nil, fmt.Errorf("read chunk ID: %w", err)
		}
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return format, nil, fmt.Errorf("read chunk size: %w", err)
		}

		switch string(id[:]) {
		case "fmt ":
			if err := readFormat(r, size, &format); err != nil {
				return format, nil, err
			}
			fmtFound = true

		case "data":
			if !fmtFound {
				return format, nil, errors.New("data chunk before fmt chunk")
			}
			// Streaming writers often leave the data size unset.
			data, err := io.ReadAll(io.LimitReader(r, int64(size)))
			if err != nil {
				return format, nil, fmt.Errorf("read data chunk: %w", err)
			}
			return format, data[:len(data)-len(data)%2], nil

		default:
			skip := int64(size)
			if size%2 != 0 {
				skip++
			}
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return format, nil, fmt.Errorf("skip chunk %q: %w", id, err)
			}
		}
	}

	if !fmtFound {
		return format, nil, errors.New("missing fmt chunk")
	}
	return format, nil, errors.New("missing data chunk")
}

func readFormat(r io.ReadSeeker, size uint32, f *WAVFormat) error {
	if size < 16 {
		return fmt.Errorf("fmt chunk too small: %d bytes", size)
	}
	fields := []any{&f.AudioFormat, &f.NumChannels, &f.SampleRate}
	for _, v := range fields {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("read fmt chunk: %w", err)
		}
	}
	// byte rate and block align are derived from the other fields
	if _, err := r.Seek(6, io.SeekCurrent); err != nil {
		return fmt.Errorf("read fmt chunk: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &f.BitsPerSample); err != nil {
		return fmt.Errorf("read fmt chunk: %w", err)
	}
	if extra := int64(size) - 16 + int64(size%2); extra > 0 {
		if _, err := r.Seek(extra, io.SeekCurrent); err != nil {
			return fmt.Errorf("skip fmt extension: %w", err)
		}
	}

	if f.AudioFormat != 1 {
		return fmt.Errorf("unsupported audio format %d (only PCM)", f.AudioFormat)
	}
	if f.BitsPerSample != 16 {
		return fmt.Errorf("unsupported bits per sample %d (only 16)", f.BitsPerSample)
	}
	return nil
}

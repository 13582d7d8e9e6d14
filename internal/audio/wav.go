package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zaf/g711"

	"glossvoice/internal/domain"
)

const (
	wavMIMEType = "audio/wav"

	wavFormatPCM   = 1
	wavFormatMuLaw = 7
)

// Encoding selects the sample encoding stored in the WAV container.
type Encoding string

const (
	EncodingPCM   Encoding = "wav"
	EncodingMuLaw Encoding = "mulaw"
)

// WAVEncoder wraps captured little-endian 16-bit PCM in a WAV container.
type WAVEncoder struct {
	format   domain.AudioFormat
	encoding Encoding
}

func NewWAVEncoder(sampleRate int, channels int, encoding Encoding) *WAVEncoder {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	if encoding != EncodingMuLaw {
		encoding = EncodingPCM
	}
	return &WAVEncoder{
		format:   domain.AudioFormat{SampleRate: sampleRate, Channels: channels, BitsPerSample: 16},
		encoding: encoding,
	}
}

// Encode concatenates chunks in order. A trailing partial frame is kept in the
// payload but left out of the container.
func (e *WAVEncoder) Encode(chunks [][]byte) (domain.Artifact, error) {
	payload := bytes.Join(chunks, nil)
	frame := e.format.Channels * (e.format.BitsPerSample / 8)
	aligned := payload[:len(payload)-len(payload)%frame]
	if len(aligned) == 0 {
		return domain.Artifact{}, &domain.EncodingError{Cause: fmt.Errorf("recording shorter than one frame (%d bytes)", len(payload))}
	}

	var container []byte
	switch e.encoding {
	case EncodingMuLaw:
		container = buildWAV(g711.EncodeUlaw(aligned), wavFormatMuLaw, e.format.SampleRate, e.format.Channels, 8)
	default:
		container = buildWAV(aligned, wavFormatPCM, e.format.SampleRate, e.format.Channels, 16)
	}

	return domain.Artifact{
		MIMEType:  wavMIMEType,
		Format:    e.format,
		Payload:   payload,
		Container: container,
	}, nil
}

func buildWAV(data []byte, formatTag int, sampleRate int, channels int, bitsPerSample int) []byte {
	var buf bytes.Buffer
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	pcm := formatTag == wavFormatPCM

	fmtSize := 16
	riffSize := 4 + (8 + fmtSize) + (8 + len(data))
	if !pcm {
		fmtSize = 18
		riffSize = 4 + (8 + fmtSize) + (8 + 4) + (8 + len(data))
	}

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(riffSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(fmtSize))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(formatTag))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	if !pcm {
		_ = binary.Write(&buf, binary.LittleEndian, uint16(0))

		// Non-PCM formats carry the sample count in a fact chunk.
		buf.WriteString("fact")
		_ = binary.Write(&buf, binary.LittleEndian, uint32(4))
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(data)/blockAlign))
	}

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

var errNotWAV = errors.New("not a RIFF/WAVE container")

// decodeWAV walks the RIFF chunks and returns 16-bit PCM.
func decodeWAV(data []byte) (domain.AudioFormat, []byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return domain.AudioFormat{}, nil, errNotWAV
	}

	var (
		format    domain.AudioFormat
		formatTag uint16
		haveFmt   bool
	)
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if size < 0 || body+size > len(data) {
			// Streams written without a final size still carry usable data.
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return domain.AudioFormat{}, nil, fmt.Errorf("fmt chunk too short (%d bytes)", size)
			}
			formatTag = binary.LittleEndian.Uint16(data[body : body+2])
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			format.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return domain.AudioFormat{}, nil, errors.New("data chunk before fmt chunk")
			}
			samples := data[body : body+size]
			switch {
			case formatTag == wavFormatPCM && format.BitsPerSample == 16:
				return format, samples, nil
			case formatTag == wavFormatMuLaw:
				format.BitsPerSample = 16
				return format, g711.DecodeUlaw(samples), nil
			default:
				return domain.AudioFormat{}, nil, fmt.Errorf("unsupported wav encoding tag=%d bits=%d", formatTag, format.BitsPerSample)
			}
		}

		offset = body + size
		if size%2 == 1 {
			offset++
		}
	}
	return domain.AudioFormat{}, nil, errors.New("wav container has no data chunk")
}

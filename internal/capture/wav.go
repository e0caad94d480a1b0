package capture

import (
	"bytes"
	"encoding/binary"
)

const pcmBitDepth = 16

// EncodeWAV wraps little-endian 16-bit PCM in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	blockAlign := channels * pcmBitDepth / 8

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(buf, binary.LittleEndian, struct {
		Size          uint32
		Format        uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
	}{16, 1, uint16(channels), uint32(sampleRate), uint32(sampleRate * blockAlign), uint16(blockAlign), pcmBitDepth})
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// Downloadable converts a blob into its file form: L16 PCM is wrapped as WAV,
// other formats pass through.
func Downloadable(b Blob) Blob {
	if !(PortAudioDevice{}).Supports(b.MimeType) {
		return b
	}
	data := EncodeWAV(b.Data, b.SampleRate, b.Channels)
	b.Data = data
	b.Size = int64(len(data))
	b.MimeType = "audio/wav"
	return b
}

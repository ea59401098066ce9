package transcode

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	const (
		sr       = 44100
		channels = 2
		frames   = 4410
	)
	pcm := make([]float64, frames*channels)
	for i := 0; i < frames; i++ {
		v := 0.9 * math.Sin(2*math.Pi*440*float64(i)/sr)
		pcm[i*channels] = v
		pcm[i*channels+1] = -v / 2
	}
	pcm[0] = 1
	pcm[1] = -1

	encoded, err := EncodeWAV(NewAudioData(pcm, sr, channels))
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	decoded, err := DecodeWAV(encoded)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if decoded.Channels != channels || decoded.SampleRate != sr {
		t.Fatalf("format = %d ch @ %d, want %d ch @ %d", decoded.Channels, decoded.SampleRate, channels, sr)
	}
	if len(decoded.PCM) != len(pcm) {
		t.Fatalf("samples = %d, want %d", len(decoded.PCM), len(pcm))
	}
	for i := range pcm {
		if diff := math.Abs(decoded.PCM[i] - pcm[i]); diff > 1.0/32768 {
			t.Fatalf("sample %d: |%v - %v| = %v > 1/32768", i, decoded.PCM[i], pcm[i], diff)
		}
	}
}

func TestEncodeWAVCanonicalHeader(t *testing.T) {
	encoded, err := EncodeWAV(NewAudioData(make([]float64, 200), 48000, 2))
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if string(encoded[0:4]) != "RIFF" || string(encoded[8:12]) != "WAVE" || string(encoded[12:16]) != "fmt " {
		t.Fatalf("bad header % x", encoded[:16])
	}

	le := binary.LittleEndian
	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"fmt size", le.Uint32(encoded[16:20]), 16},
		{"format", uint32(le.Uint16(encoded[20:22])), 1},
		{"channels", uint32(le.Uint16(encoded[22:24])), 2},
		{"sample rate", le.Uint32(encoded[24:28]), 48000},
		{"byte rate", le.Uint32(encoded[28:32]), 48000 * 4},
		{"block align", uint32(le.Uint16(encoded[32:34])), 4},
		{"bits", uint32(le.Uint16(encoded[34:36])), 16},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if string(encoded[36:40]) != "data" {
		t.Errorf("data chunk id = %q, want \"data\"", encoded[36:40])
	}
	if got := le.Uint32(encoded[40:44]); got != 400 {
		t.Errorf("data size = %d, want 400", got)
	}
	if len(encoded) != 444 {
		t.Errorf("file size = %d, want 444", len(encoded))
	}
}

func TestEncodeWAVClamps(t *testing.T) {
	encoded, err := EncodeWAV(NewAudioData([]float64{2, -2, math.NaN()}, 8000, 1))
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	decoded, err := DecodeWAV(encoded)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	want := []float64{1, -1, 0}
	for i := range want {
		if decoded.PCM[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, decoded.PCM[i], want[i])
		}
	}
}

func TestDecodeBytesNativeWAVRemix(t *testing.T) {
	encoded, err := EncodeWAV(NewAudioData([]float64{0.5, -0.25}, 8000, 1))
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	decoded, err := NewDecoder(nil).DecodeBytes(context.Background(), encoded)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if decoded.Channels != 2 || decoded.Frames() != 2 {
		t.Fatalf("got %d ch, %d frames, want 2 ch, 2 frames", decoded.Channels, decoded.Frames())
	}
	if decoded.PCM[0] != decoded.PCM[1] {
		t.Errorf("mono not duplicated: %v", decoded.PCM)
	}
}

func TestDecodeBytesEmpty(t *testing.T) {
	if _, err := NewDecoder(nil).DecodeBytes(context.Background(), nil); err == nil {
		t.Errorf("expected error for empty input")
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, err := DecodeWAV([]byte("definitely not audio")); err == nil {
		t.Errorf("expected error")
	}
}

func TestParseFFprobeOutput(t *testing.T) {
	d := NewDecoder(nil)
	meta, err := d.parseFFprobeOutput([]byte(`{"streams":[{"codec_type":"audio","codec_name":"mp3","sample_rate":"48000","channels":2,"duration":"12.5","bit_rate":"320000"}]}`))
	if err != nil {
		t.Fatalf("parseFFprobeOutput: %v", err)
	}
	if meta.SampleRate != 48000 || meta.Channels != 2 || meta.Duration != 12.5 || meta.Bitrate != 320000 {
		t.Errorf("meta = %+v", meta)
	}
	if _, err := d.parseFFprobeOutput([]byte(`{"streams":[]}`)); err == nil {
		t.Errorf("expected error for no streams")
	}
}

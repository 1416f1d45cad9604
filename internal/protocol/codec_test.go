package protocol

import (
	"bytes"
	"testing"
)

func TestCodecWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf, 0)

	want := Packet{ID: 3, Cmd: "login", Args: []interface{}{"alice", "secret"}}
	if err := codec.WritePacket(want); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}

	got, err := codec.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if got.ID != want.ID || got.Cmd != want.Cmd {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestCodecRejectsOversizedDeclaredLength(t *testing.T) {
	var buf bytes.Buffer
	writer := NewCodec(&buf, 0)
	p := Packet{ID: 1, Cmd: "getFileList", Args: []interface{}{"/"}}
	if err := writer.WritePacket(p); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}

	reader := NewCodec(&buf, 4) // smaller than the body just written
	if _, err := reader.ReadPacket(); err != ErrPacketTooLarge {
		t.Fatalf("ReadPacket error = %v, want ErrPacketTooLarge", err)
	}
}

func TestCodecReadPacketOnEmptyStreamReturnsError(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf, 0)
	if _, err := codec.ReadPacket(); err == nil {
		t.Fatal("expected error reading from an empty stream")
	}
}

package shared

import (
	"bytes"
	"testing"
)

func TestWipeByteArray(t *testing.T) {
	b := []byte("Passw0rd!")
	WipeByteArray(b)
	if !bytes.Equal(b, make([]byte, 9)) {
		t.Fatalf("not wiped: %v", b)
	}

	WipeByteArray(nil)
}

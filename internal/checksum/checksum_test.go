package checksum

import "testing"

func TestURLHash(t *testing.T) {
	got := URLHash("https://example.com")
	want := "c984d06aafbecf6bc55569f964148ea3"
	if got != want {
		t.Errorf("URLHash = %q, want %q", got, want)
	}
	if URLHash("https://example.com/a") == got {
		t.Error("different urls must hash differently")
	}
}

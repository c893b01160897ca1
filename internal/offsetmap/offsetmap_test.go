package offsetmap

import (
	"testing"
	"unicode/utf8"

	"pgregory.net/rapid"

	"github.com/dshills/glint/internal/token"
)

func TestBuildASCII(t *testing.T) {
	m := Build("const x = 1;")

	if m.CharCount() != 12 {
		t.Errorf("CharCount() = %d, want 12", m.CharCount())
	}
	if m.ByteLen() != 12 {
		t.Errorf("ByteLen() = %d, want 12", m.ByteLen())
	}

	// Byte and character offsets coincide for ASCII.
	for b := 0; b <= 12; b++ {
		if got := m.ByteToChar(b); got != b {
			t.Errorf("ByteToChar(%d) = %d, want %d", b, got, b)
		}
		if got := m.ByteToCharCeil(b); got != b {
			t.Errorf("ByteToCharCeil(%d) = %d, want %d", b, got, b)
		}
	}
}

func TestBuildMultiByte(t *testing.T) {
	// "héllo" — é is 2 bytes, so byte offsets 1 and 2 both live
	// inside the second character.
	content := "héllo"
	m := Build(content)

	if m.CharCount() != 5 {
		t.Fatalf("CharCount() = %d, want 5", m.CharCount())
	}
	if m.ByteLen() != 6 {
		t.Fatalf("ByteLen() = %d, want 6", m.ByteLen())
	}

	tests := []struct {
		byteOff   int
		wantFloor int
		wantCeil  int
	}{
		{0, 0, 0},
		{1, 1, 1}, // start of é
		{2, 1, 2}, // mid-é: floor stays on é, ceil moves past it
		{3, 2, 2}, // first l
		{6, 5, 5},
	}

	for _, tt := range tests {
		if got := m.ByteToChar(tt.byteOff); got != tt.wantFloor {
			t.Errorf("ByteToChar(%d) = %d, want %d", tt.byteOff, got, tt.wantFloor)
		}
		if got := m.ByteToCharCeil(tt.byteOff); got != tt.wantCeil {
			t.Errorf("ByteToCharCeil(%d) = %d, want %d", tt.byteOff, got, tt.wantCeil)
		}
	}
}

func TestByteToCharOutOfRange(t *testing.T) {
	m := Build("abc")

	if got := m.ByteToChar(-1); got != 0 {
		t.Errorf("ByteToChar(-1) = %d, want 0", got)
	}
	if got := m.ByteToChar(100); got != 3 {
		t.Errorf("ByteToChar(100) = %d, want 3", got)
	}
	if got := m.ByteToCharCeil(100); got != 3 {
		t.Errorf("ByteToCharCeil(100) = %d, want 3", got)
	}
}

func TestMapTokensFiltersMalformed(t *testing.T) {
	m := Build("const x = 1;")

	in := []token.Token{
		{Start: 0, End: 5, Type: "keyword"},
		{Start: 5, End: 5, Type: "degenerate"},
		{Start: 8, End: 6, Type: "inverted"},
		{Start: -1, End: 3, Type: "negative"},
		{Start: 10, End: 500, Type: "out-of-bounds"},
		{Start: 6, End: 7, Type: "identifier"},
	}

	out := m.MapTokens(in)

	if len(out) != 2 {
		t.Fatalf("MapTokens() kept %d tokens, want 2: %+v", len(out), out)
	}
	if out[0].Type != "keyword" || out[1].Type != "identifier" {
		t.Errorf("unexpected surviving tokens: %+v", out)
	}
}

func TestMapTokensMultiByte(t *testing.T) {
	// "日本 = 1" — each CJK rune is 3 bytes.
	content := "日本 = 1"
	m := Build(content)

	in := []token.Token{
		{Start: 0, End: 6, Type: "identifier"}, // 日本
		{Start: 7, End: 8, Type: "operator"},   // =
		{Start: 9, End: 10, Type: "number"},    // 1
	}

	out := m.MapTokens(in)
	if len(out) != 3 {
		t.Fatalf("MapTokens() kept %d tokens, want 3", len(out))
	}

	want := []token.Token{
		{Start: 0, End: 2, Type: "identifier"},
		{Start: 3, End: 4, Type: "operator"},
		{Start: 5, End: 6, Type: "number"},
	}
	for i, w := range want {
		if out[i] != w {
			t.Errorf("token %d = %+v, want %+v", i, out[i], w)
		}
	}
}

func TestMapTokensMidRuneBoundaries(t *testing.T) {
	// A backend boundary inside é must not make the token vanish.
	content := "aéb"
	m := Build(content)

	// Byte span [1,2) is the first byte of é only.
	out := m.MapTokens([]token.Token{{Start: 1, End: 2, Type: "string"}})

	if len(out) != 1 {
		t.Fatalf("token spanning a partial rune was dropped")
	}
	if out[0].Start != 1 || out[0].End != 2 {
		t.Errorf("resolved span = [%d,%d), want [1,2)", out[0].Start, out[0].End)
	}
}

func TestMapTokensDropsOversized(t *testing.T) {
	content := make([]byte, MaxTokenSpan+100)
	for i := range content {
		content[i] = 'a'
	}
	m := Build(string(content))

	out := m.MapTokens([]token.Token{{Start: 0, End: MaxTokenSpan + 50, Type: "comment"}})
	if len(out) != 0 {
		t.Error("oversized span should be dropped")
	}
}

// TestRoundTripASCII checks the round-trip property for ASCII content:
// converting a character offset to bytes and back is the identity.
func TestRoundTripASCII(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		content := rapid.StringMatching(`[ -~]{0,200}`).Draw(t, "content")
		if !IsASCII(content) {
			t.Fatalf("generator produced non-ASCII content")
		}
		m := Build(content)
		for c := 0; c <= m.CharCount(); c++ {
			if got := m.ByteToChar(m.CharToByte(c)); got != c {
				t.Fatalf("round trip failed: char %d -> byte %d -> char %d", c, m.CharToByte(c), got)
			}
		}
	})
}

// TestRoundTripRuneBoundaries checks that for arbitrary Unicode
// content, every true rune boundary maps byte->char->byte onto itself.
func TestRoundTripRuneBoundaries(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		content := rapid.String().Draw(t, "content")
		m := Build(content)

		charOff := 0
		for byteOff := 0; byteOff <= len(content); {
			if got := m.ByteToChar(byteOff); got != charOff {
				t.Fatalf("ByteToChar(%d) = %d, want %d", byteOff, got, charOff)
			}
			if got := m.CharToByte(charOff); got != byteOff {
				t.Fatalf("CharToByte(%d) = %d, want %d", charOff, got, byteOff)
			}
			if byteOff == len(content) {
				break
			}
			_, size := utf8.DecodeRuneInString(content[byteOff:])
			byteOff += size
			charOff++
		}
	})
}

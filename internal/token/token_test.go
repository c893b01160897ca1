package token

import "testing"

func TestTokenClip(t *testing.T) {
	tests := []struct {
		name     string
		tok      Token
		start    int
		end      int
		want     Token
		wantKeep bool
	}{
		{
			name:     "fully inside",
			tok:      Token{Start: 5, End: 8, Type: "keyword"},
			start:    0,
			end:      10,
			want:     Token{Start: 5, End: 8, Type: "keyword"},
			wantKeep: true,
		},
		{
			name:     "clipped at both ends",
			tok:      Token{Start: 2, End: 20, Type: "string"},
			start:    5,
			end:      10,
			want:     Token{Start: 0, End: 5, Type: "string"},
			wantKeep: true,
		},
		{
			name:     "rebased to range start",
			tok:      Token{Start: 12, End: 15, Type: "number"},
			start:    10,
			end:      20,
			want:     Token{Start: 2, End: 5, Type: "number"},
			wantKeep: true,
		},
		{
			name:     "no overlap before",
			tok:      Token{Start: 0, End: 3},
			start:    5,
			end:      10,
			wantKeep: false,
		},
		{
			name:     "no overlap after",
			tok:      Token{Start: 10, End: 12},
			start:    0,
			end:      10,
			wantKeep: false,
		},
		{
			name:     "touching boundary is dropped",
			tok:      Token{Start: 5, End: 5},
			start:    0,
			end:      10,
			wantKeep: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, keep := tt.tok.Clip(tt.start, tt.end)
			if keep != tt.wantKeep {
				t.Fatalf("Clip() keep = %v, want %v", keep, tt.wantKeep)
			}
			if keep && got != tt.want {
				t.Errorf("Clip() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSortAndIsSorted(t *testing.T) {
	tokens := []Token{
		{Start: 10, End: 12},
		{Start: 0, End: 5},
		{Start: 6, End: 9},
	}

	if IsSorted(tokens) {
		t.Error("IsSorted should be false before sorting")
	}

	Sort(tokens)

	if !IsSorted(tokens) {
		t.Error("IsSorted should be true after sorting")
	}
	if tokens[0].Start != 0 || tokens[2].Start != 10 {
		t.Errorf("Sort order wrong: %+v", tokens)
	}
}

func TestFingerprint(t *testing.T) {
	content := "const x = 1;"
	fp := FingerprintOf(content)

	if !fp.Matches(content) {
		t.Error("fingerprint should match its own content")
	}
	if fp.Matches("const x = 2;") {
		t.Error("fingerprint should not match different content of same length")
	}
	if fp.Matches("short") {
		t.Error("fingerprint should not match content of different length")
	}

	other := FingerprintOf(content)
	if !fp.Equal(other) {
		t.Error("fingerprints of identical content should be equal")
	}
}

func TestNewSetSortsTokens(t *testing.T) {
	set := NewSet("abc def", []Token{
		{Start: 4, End: 7},
		{Start: 0, End: 3},
	})

	if !IsSorted(set.Tokens) {
		t.Error("NewSet should sort tokens")
	}
	if set.Fingerprint.Length != 7 {
		t.Errorf("Fingerprint.Length = %d, want 7", set.Fingerprint.Length)
	}
}

func TestClassFor(t *testing.T) {
	tests := []struct {
		scope string
		want  string
	}{
		{"keyword", "hl-keyword"},
		{"keyword.control", "hl-keyword"},
		{"comment.block.documentation", "hl-comment"},
		{"string.quoted.double", "hl-string"},
		{"something.unknown", "hl-text"},
		{"", "hl-text"},
	}

	for _, tt := range tests {
		if got := ClassFor(tt.scope); got != tt.want {
			t.Errorf("ClassFor(%q) = %q, want %q", tt.scope, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tokens := []Token{
		{Start: 0, End: 5, Type: "keyword.control"},
		{Start: 6, End: 7, Type: "number", Class: "custom"},
	}

	Classify(tokens)

	if tokens[0].Class != "hl-keyword" {
		t.Errorf("Class = %q, want hl-keyword", tokens[0].Class)
	}
	if tokens[1].Class != "custom" {
		t.Error("Classify should not overwrite an existing class")
	}
}

package tokenizer

import (
	"strings"
	"testing"
)

func TestWordLevel_EncodeDecode(t *testing.T) {
	tok := NewWordLevel([]string{"Tokyo", "is", "the", "capital", "of", "Japan."})

	ids := tok.Encode("Tokyo is the capital of Japan.")
	if len(ids) != 7 {
		t.Fatalf("expected 6 words + EOS, got %d ids", len(ids))
	}
	if ids[len(ids)-1] != tok.EOSID() {
		t.Errorf("expected trailing EOS id %d, got %d", tok.EOSID(), ids[len(ids)-1])
	}

	got := tok.Decode(ids, true)
	if got != "Tokyo is the capital of Japan." {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestWordLevel_UnknownWord(t *testing.T) {
	tok := NewWordLevel([]string{"is"})

	ids := tok.Encode("Paris is")
	if ids[0] != tok.IDFor(UnkToken) {
		t.Errorf("expected unknown id for Paris, got %d", ids[0])
	}
	if got := tok.Decode(ids, false); !strings.Contains(got, UnkToken) {
		t.Errorf("expected %s in raw decode, got %q", UnkToken, got)
	}
}

func TestWordLevel_AddSpecialTokens(t *testing.T) {
	tok := NewWordLevel([]string{"Tokyo"})
	before := tok.VocabSize()

	size := tok.AddSpecialTokens([]string{"<hl>"})
	if size != before+1 {
		t.Fatalf("expected vocab size %d, got %d", before+1, size)
	}
	if again := tok.AddSpecialTokens([]string{"<hl>"}); again != size {
		t.Errorf("expected idempotent registration, size went %d -> %d", size, again)
	}

	ids := tok.Encode("<hl> Tokyo <hl>")
	if got := tok.Decode(ids, true); got != "Tokyo" {
		t.Errorf("expected markers dropped on decode, got %q", got)
	}
	if got := tok.Decode(ids, false); !strings.Contains(got, "<hl>") {
		t.Errorf("expected markers kept on raw decode, got %q", got)
	}
}

func TestWordLevel_EncodePlus_Truncate(t *testing.T) {
	tok := NewWordLevel([]string{"a", "b", "c", "d", "e"})

	enc := tok.EncodePlus("a b c d e", EncodeOptions{MaxLength: 4, Truncate: true})
	if len(enc.InputIDs) != 4 {
		t.Fatalf("expected 4 ids after truncation, got %d", len(enc.InputIDs))
	}
	if enc.InputIDs[3] != tok.EOSID() {
		t.Errorf("expected EOS to survive truncation, got id %d", enc.InputIDs[3])
	}
	for i, m := range enc.AttentionMask {
		if m != 1 {
			t.Errorf("mask[%d]: expected 1, got %d", i, m)
		}
	}
}

func TestWordLevel_EncodePlus_Pad(t *testing.T) {
	tok := NewWordLevel([]string{"a", "b"})

	enc := tok.EncodePlus("a b", EncodeOptions{MaxLength: 6, Truncate: true, Pad: true})
	if len(enc.InputIDs) != 6 || len(enc.AttentionMask) != 6 {
		t.Fatalf("expected padded length 6, got %d/%d", len(enc.InputIDs), len(enc.AttentionMask))
	}
	for i := 0; i < 3; i++ {
		if enc.AttentionMask[i] != 1 {
			t.Errorf("mask[%d]: expected 1, got %d", i, enc.AttentionMask[i])
		}
	}
	for i := 3; i < 6; i++ {
		if enc.InputIDs[i] != tok.PadID() {
			t.Errorf("ids[%d]: expected pad id, got %d", i, enc.InputIDs[i])
		}
		if enc.AttentionMask[i] != 0 {
			t.Errorf("mask[%d]: expected 0, got %d", i, enc.AttentionMask[i])
		}
	}

	if got := tok.Decode(enc.InputIDs, true); got != "a b" {
		t.Errorf("padded decode mismatch: %q", got)
	}
}

func testBPEState() SavedState {
	return SavedState{
		SpecialTokens: []string{PadToken, EOSToken, UnkToken},
		Vocab: []string{
			PadToken, EOSToken, UnkToken,
			"t", "o", endOfWord, "to", "to" + endOfWord,
		},
		Merges: []string{"t o", "to " + endOfWord},
	}
}

func TestBPE_EncodeDecode(t *testing.T) {
	tok, err := NewBPE(testBPEState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := tok.Encode("to to")
	want := []int{7, 7, 1}
	if len(ids) != len(want) {
		t.Fatalf("expected ids %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected ids %v, got %v", want, ids)
		}
	}

	if got := tok.Decode(ids, true); got != "to to" {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestBPE_UnknownCharacters(t *testing.T) {
	tok, err := NewBPE(testBPEState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := tok.encode("xx")
	if len(ids) != 3 {
		t.Fatalf("expected x, x, end-of-word ids, got %v", ids)
	}
	for _, id := range ids[:2] {
		if id != tok.idFor(UnkToken) {
			t.Errorf("expected unknown id, got %d", id)
		}
	}
}

func TestBPE_MergePriority(t *testing.T) {
	state := SavedState{
		Vocab: []string{
			"a", "b", "c", endOfWord,
			"bc", "abc", "ab",
		},
		Merges: []string{"b c", "a bc", "a b"},
	}
	tok, err := NewBPE(state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := tok.encode("abc")
	want := []int{tok.ids["abc"], tok.ids[endOfWord]}
	if len(ids) != 2 || ids[0] != want[0] || ids[1] != want[1] {
		t.Errorf("expected lowest-rank merges first, want %v got %v", want, ids)
	}
}

func TestBPE_SpecialTokenSplit(t *testing.T) {
	tok, err := NewBPE(testBPEState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tok.AddSpecialTokens([]string{"<hl>"})

	ids := tok.Encode("<hl> to <hl>")
	hlID := tok.ids["<hl>"]
	if ids[0] != hlID || ids[2] != hlID {
		t.Fatalf("expected marker ids at 0 and 2, got %v", ids)
	}
	if got := tok.Decode(ids, true); got != "to" {
		t.Errorf("expected markers dropped, got %q", got)
	}
}

func TestBPE_StateErrors(t *testing.T) {
	tests := []struct {
		name  string
		state SavedState
	}{
		{
			name: "merge result missing",
			state: SavedState{
				Vocab:  []string{"a", "b"},
				Merges: []string{"a b"},
			},
		},
		{
			name: "special not in vocab",
			state: SavedState{
				SpecialTokens: []string{"<sep>"},
				Vocab:         []string{"a"},
			},
		},
		{
			name: "malformed merge",
			state: SavedState{
				Vocab:  []string{"a"},
				Merges: []string{"a"},
			},
		},
		{
			name: "duplicate token",
			state: SavedState{
				Vocab: []string{"a", "a"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBPE(tt.state); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

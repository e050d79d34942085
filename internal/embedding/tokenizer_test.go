package embedding

import (
	"reflect"
	"testing"
)

func TestHashTokenizer_Tokenize(t *testing.T) {
	tok := &HashTokenizer{}
	ids, attn, types := tok.Tokenize("Flying over glass", 8)
	if len(ids) != 8 || len(attn) != 8 || len(types) != 8 {
		t.Fatalf("lengths = %d/%d/%d", len(ids), len(attn), len(types))
	}
	if ids[0] != tokenCLS || ids[4] != tokenSEP {
		t.Errorf("ids = %v", ids)
	}
	for i, want := range []int64{1, 1, 1, 1, 1, 0, 0, 0} {
		if attn[i] != want {
			t.Errorf("attention[%d] = %d, want %d", i, attn[i], want)
		}
	}
	for _, id := range ids[1:4] {
		if id < vocabOffset || id >= vocabSize {
			t.Errorf("word id %d outside vocabulary range", id)
		}
	}
}

func TestHashTokenizer_Truncates(t *testing.T) {
	ids, attn, _ := (&HashTokenizer{}).Tokenize("a b c d e f g h", 4)
	if ids[3] != tokenSEP {
		t.Errorf("last token should be SEP, got %v", ids)
	}
	for _, m := range attn {
		if m != 1 {
			t.Errorf("all positions should be attended: %v", attn)
		}
	}
}

func TestSplitWords(t *testing.T) {
	got := SplitWords("  The door, the KEY!  ")
	if !reflect.DeepEqual(got, []string{"the", "door", "the", "key"}) {
		t.Errorf("SplitWords = %v", got)
	}
	if SplitWords("...") != nil {
		t.Error("punctuation-only text should return nil")
	}
}

func TestHashString(t *testing.T) {
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("abc") == HashString("abd") {
		t.Error("different strings should hash differently")
	}
}

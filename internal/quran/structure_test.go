package quran

import "testing"

func TestVerseCount_KnownChapters(t *testing.T) {
	cases := []struct {
		chapter int
		want    int
	}{
		{1, 7},
		{2, 286},
		{23, 118},
		{103, 3},
		{114, 6},
	}
	for _, c := range cases {
		got, ok := VerseCount(c.chapter)
		if !ok {
			t.Fatalf("chapter %d: expected ok", c.chapter)
		}
		if got != c.want {
			t.Errorf("chapter %d: expected %d verses, got %d", c.chapter, c.want, got)
		}
	}
}

func TestVerseCount_OutOfRange(t *testing.T) {
	for _, chapter := range []int{0, -1, 115, 1000} {
		if _, ok := VerseCount(chapter); ok {
			t.Errorf("chapter %d: expected out of range", chapter)
		}
	}
}

func TestVerseCount_TableIsComplete(t *testing.T) {
	total := 0
	for ch := 1; ch <= ChapterCount; ch++ {
		n, ok := VerseCount(ch)
		if !ok || n < 3 {
			t.Fatalf("chapter %d: missing or implausible count %d", ch, n)
		}
		total += n
	}
	if total != 6236 {
		t.Fatalf("expected 6236 verses in total, got %d", total)
	}
}

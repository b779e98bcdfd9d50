package address

import (
	"errors"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	valid := []string{
		"1Address111",
		"1HeLLo19x1NickName1Registry11112Ln2",
		"1JUehEmnSJzDY5AZRsdCKKFsUuLq11K3o",
		"1111111111",
	}
	for _, raw := range valid {
		a, err := Parse(raw)
		if err != nil {
			t.Errorf("Parse(%q) = %v", raw, err)
			continue
		}
		if a.String() != raw {
			t.Errorf("round trip: Parse(%q).String() = %q", raw, a.String())
		}
	}
}

func TestParseMalformed(t *testing.T) {
	invalid := []string{
		"",
		"not-an-address",
		"1short",                               // too short
		"2Address111",                          // wrong prefix
		"1Address0OIl",                         // characters outside the base58 alphabet
		"1AddressAddressAddressAddressAddress", // too long
	}
	for _, raw := range invalid {
		if _, err := Parse(raw); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestShort(t *testing.T) {
	a := MustParse("1HeLLo19x1NickName1Registry11112Ln2")
	got := a.Short()
	if got != "1HeLLo1…2Ln2" {
		t.Fatalf("Short() = %q", got)
	}

	small := MustParse("1Address111")
	if small.Short() != "1Address111" {
		t.Fatalf("short addresses should display whole: %q", small.Short())
	}
}

func TestMapKeyEquality(t *testing.T) {
	a1 := MustParse("1Address111")
	a2 := MustParse("1Address111")
	m := map[Address]int{a1: 1}
	if m[a2] != 1 {
		t.Fatal("equal addresses must hash alike")
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustParse should panic on malformed input")
		}
	}()
	MustParse("bogus")
}

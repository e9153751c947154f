package testutil

import (
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	var v map[string]int
	DecodeJSON(t, strings.NewReader(`{"n": 3}`), &v)
	if v["n"] != 3 {
		t.Fatalf("decoded %v", v)
	}
}

func TestAssertStatusCodePasses(t *testing.T) {
	AssertStatusCode(t, 200, 200)
	AssertNoError(t, nil)
}

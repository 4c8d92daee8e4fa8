package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeStringMapTrims(t *testing.T) {
	got := NormalizeStringMap(map[string]string{
		" API_PORT ":  " 8080 ",
		"API_ENV":     " local ",
		"BLANK_VALUE": "  ",
		"  ":          "dropped",
		"":            "dropped",
	})
	want := map[string]string{
		"API_PORT":    "8080",
		"API_ENV":     "local",
		"BLANK_VALUE": "",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v, got %#v", want, got)
	}
}

func TestNormalizeStringMapCollapsesToNil(t *testing.T) {
	if got := NormalizeStringMap(nil); got != nil {
		t.Fatalf("expected nil for nil input, got %#v", got)
	}
	if got := NormalizeStringMap(map[string]string{}); got != nil {
		t.Fatalf("expected nil for empty input, got %#v", got)
	}
	if got := NormalizeStringMap(map[string]string{" ": "x"}); got != nil {
		t.Fatalf("expected nil when every key trims empty, got %#v", got)
	}
}

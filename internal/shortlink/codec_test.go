package shortlink

import (
	"errors"
	"reflect"
	"testing"

	"github.com/iliyamo/datepoll/internal/model"
)

func TestRoundTripTitleAndParticipants(t *testing.T) {
	enc, err := CompressURLParams("https://datepoll.example/?title=X&participants=A,B")
	if err != nil {
		t.Fatalf("CompressURLParams: %v", err)
	}
	got, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := model.TemplateParams{Title: "X", Participants: []string{"A", "B"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Decode = %+v, want %+v", got, want)
	}
}

func TestDecompressToURLParams(t *testing.T) {
	enc, err := CompressURLParams("http://localhost:3000/new?title=Team+lunch&participants=+Ann+,,Bo&template=weekdays&months=2&utm_source=mail")
	if err != nil {
		t.Fatalf("CompressURLParams: %v", err)
	}
	v, err := DecompressToURLParams(enc)
	if err != nil {
		t.Fatalf("DecompressToURLParams: %v", err)
	}
	if v.Get("title") != "Team lunch" || v.Get("participants") != "Ann,Bo" ||
		v.Get("template") != "weekdays" || v.Get("months") != "2" {
		t.Fatalf("values = %v", v)
	}
	if v.Has("utm_source") {
		t.Fatal("unrelated parameter survived compression")
	}
}

func TestCompressRejectsMalformedURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://host/?title=x", "/relative?title=x", "http://"} {
		if _, err := CompressURLParams(raw); !errors.Is(err, ErrMalformedURL) {
			t.Errorf("CompressURLParams(%q) err = %v, want ErrMalformedURL", raw, err)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode("!!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := Decode("aGVsbG8"); err == nil {
		t.Fatal("expected error for non-deflate payload")
	}
}

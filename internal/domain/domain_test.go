package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestRawImageValidate(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	tests := []struct {
		name      string
		mediaType string
		data      []byte
		wantErr   bool
	}{
		{name: "declared jpeg", mediaType: "image/jpeg", data: []byte{1, 2, 3}},
		{name: "declared with params", mediaType: "image/png; charset=binary", data: []byte{1}},
		{name: "text rejected", mediaType: "text/plain", data: []byte("hello"), wantErr: true},
		{name: "sniffed png", mediaType: "", data: png},
		{name: "sniffed text rejected", mediaType: "application/octet-stream", data: []byte("plain words"), wantErr: true},
		{name: "empty rejected", mediaType: "image/png", data: nil, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := NewRawImage("photo", tc.mediaType, tc.data)
			err := raw.Validate()
			if tc.wantErr {
				if !IsValidation(err) {
					t.Fatalf("Validate() = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestRawImageIdentity(t *testing.T) {
	a := NewRawImage("a.jpg", "image/jpeg", []byte{1, 2, 3})
	b := NewRawImage("b.jpg", "image/jpeg", []byte{1, 2, 3})
	c := NewRawImage("a.jpg", "image/jpeg", []byte{1, 2, 4})
	if a.Identity() != b.Identity() {
		t.Fatalf("identity should depend on content only")
	}
	if a.Identity() == c.Identity() {
		t.Fatalf("different content must have different identity")
	}
}

func TestParseCharacter(t *testing.T) {
	tests := []struct {
		in   string
		want Character
	}{
		{in: "皮皮", want: CharacterPipi},
		{in: " zack ", want: CharacterZack},
		{in: "ZACK", want: CharacterZack},
		{in: "badou", want: CharacterBadou},
		{in: "闪电", want: CharacterShandian},
	}
	for _, tc := range tests {
		got, err := ParseCharacter(tc.in)
		if err != nil {
			t.Fatalf("ParseCharacter(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseCharacter(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := ParseCharacter("nobody"); !IsValidation(err) {
		t.Fatalf("expected validation error for unknown character, got %v", err)
	}
	if _, err := ParseCharacter(""); !IsValidation(err) {
		t.Fatalf("expected validation error for empty character, got %v", err)
	}
}

func TestFailedClassifiesWrappedErrors(t *testing.T) {
	cause := NewError(KindProtocol, "missing poster url", errors.New("decode"))
	res := Failed(fmt.Errorf("stage: %w", cause))
	if res.OK() || res.Failure == nil {
		t.Fatalf("expected failure result")
	}
	if res.Failure.Kind != KindProtocol || res.Failure.Message != "missing poster url" {
		t.Fatalf("unexpected failure: %+v", res.Failure)
	}

	res = Failed(errors.New("boom"))
	if res.Failure.Kind != KindTransport {
		t.Fatalf("unclassified error kind = %q, want transport", res.Failure.Kind)
	}

	remote := Failed(RemoteError("face not detected"))
	if !remote.Failure.Remote || remote.Failure.Message != "face not detected" {
		t.Fatalf("remote message not preserved: %+v", remote.Failure)
	}
}

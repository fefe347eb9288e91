package media_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/laith/pkg/provider/media"
)

func TestParseAspect(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    media.Aspect
		wantErr bool
	}{
		{"", media.AspectSquare, false},
		{"1:1", media.AspectSquare, false},
		{"16:9", media.AspectLandscape, false},
		{"9:16", media.AspectPortrait, false},
		{"4:3", "", true},
	}
	for _, tt := range tests {
		got, err := media.ParseAspect(tt.in)
		if tt.wantErr {
			if !errors.Is(err, media.ErrInvalidAspect) {
				t.Errorf("ParseAspect(%q) err = %v, want ErrInvalidAspect", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseAspect(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestImage_DataURL(t *testing.T) {
	t.Parallel()
	img := media.Image{Data: []byte("hi"), MIMEType: "image/jpeg"}
	if got := img.DataURL(); got != "data:image/jpeg;base64,aGk=" {
		t.Errorf("DataURL = %q", got)
	}
	if got := (media.Image{Data: []byte("hi")}).DataURL(); got != "data:image/png;base64,aGk=" {
		t.Errorf("DataURL without mime = %q", got)
	}
}

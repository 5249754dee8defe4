package loader

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"go-photostrip-server/internal/dataurl"
	"go-photostrip-server/internal/errs"
	"go-photostrip-server/internal/photo"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 120, A: 255})
		}
	}
	return img
}

func encoded(t *testing.T, format string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	var err error
	img := testImage(w, h)
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	case "gif":
		err = gif.Encode(&buf, img, nil)
	}
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return dataurl.Encode("image/"+format, buf.Bytes())
}

func TestDecodeFormats(t *testing.T) {
	for _, format := range []string{"png", "jpeg", "gif"} {
		t.Run(format, func(t *testing.T) {
			got, err := Decode(photo.CapturedImage{
				Data:       encoded(t, format, 12, 8),
				FacingMode: photo.FacingEnvironment,
				Timestamp:  42,
			})
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Image.Bounds().Dx() != 12 || got.Image.Bounds().Dy() != 8 {
				t.Errorf("bounds = %v", got.Image.Bounds())
			}
			if got.FacingMode != photo.FacingEnvironment || got.Timestamp != 42 {
				t.Errorf("metadata not carried: %+v", got)
			}
		})
	}
}

func TestLoadKeepsOrderAndMetadata(t *testing.T) {
	l := New(2)
	in := []photo.CapturedImage{
		{Data: encoded(t, "png", 4, 4), FacingMode: photo.FacingUser, Timestamp: 300},
		{Data: encoded(t, "jpeg", 6, 4), FacingMode: photo.FacingEnvironment, Timestamp: 100},
		{Data: encoded(t, "png", 8, 4), FacingMode: photo.FacingUser, Timestamp: 200},
	}
	out, err := l.Load(context.Background(), in)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len = %d", len(out))
	}
	for i, want := range []int{4, 6, 8} {
		if out[i].Image.Bounds().Dx() != want {
			t.Errorf("out[%d] width = %d, want %d", i, out[i].Image.Bounds().Dx(), want)
		}
		if out[i].Timestamp != in[i].Timestamp {
			t.Errorf("out[%d] timestamp = %d", i, out[i].Timestamp)
		}
	}
	if got := l.Current(); len(got) != 3 {
		t.Errorf("Current() len = %d, want 3", len(got))
	}
}

func TestLoadDecodeFailure(t *testing.T) {
	l := New(1)
	in := []photo.CapturedImage{
		{Data: encoded(t, "png", 4, 4), Timestamp: 1},
		{Data: dataurl.Encode("image/png", []byte("not a png")), Timestamp: 2},
		{Data: encoded(t, "png", 4, 4), Timestamp: 3},
	}
	_, err := l.Load(context.Background(), in)
	if !errors.Is(err, errs.DecodeFailed) {
		t.Fatalf("Load() = %v, want DecodeFailed", err)
	}
	idx, ok := FailedIndex(err)
	if !ok || idx != 1 {
		t.Errorf("FailedIndex = %d, %v; want 1, true", idx, ok)
	}
	var de *DecodeError
	if errors.As(err, &de) && de.Timestamp != 2 {
		t.Errorf("timestamp = %d, want 2", de.Timestamp)
	}
	if l.Current() != nil {
		t.Error("failed load must not commit")
	}
}

func TestLoadMalformedDataURL(t *testing.T) {
	l := New(0)
	_, err := l.Load(context.Background(), []photo.CapturedImage{{Data: "nope"}})
	if !errors.Is(err, errs.DecodeFailed) || !errors.Is(err, dataurl.ErrMalformed) {
		t.Fatalf("Load() = %v, want DecodeFailed wrapping ErrMalformed", err)
	}
}

func TestStaleCommitDiscarded(t *testing.T) {
	l := New(1)
	older := l.begin()
	newer := l.begin()

	stale := []photo.Loaded{{Timestamp: 1}}
	if err := l.commit(older, stale); !errors.Is(err, ErrStale) {
		t.Fatalf("commit(older) = %v, want ErrStale", err)
	}
	if l.Current() != nil {
		t.Fatal("stale result was committed")
	}

	fresh := []photo.Loaded{{Timestamp: 2}}
	if err := l.commit(newer, fresh); err != nil {
		t.Fatalf("commit(newer): %v", err)
	}
	if got := l.Current(); len(got) != 1 || got[0].Timestamp != 2 {
		t.Errorf("Current() = %+v", got)
	}
}

func TestLoadEmpty(t *testing.T) {
	out, err := New(1).Load(context.Background(), nil)
	if err != nil || len(out) != 0 {
		t.Fatalf("Load(nil) = %v, %v", out, err)
	}
}

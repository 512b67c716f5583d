package photoverify

import (
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// exifTimeLayout is the EXIF date-time format ("YYYY:MM:DD HH:MM:SS").
const exifTimeLayout = "2006:01:02 15:04:05"

// ExifExtractor reads the capture timestamp from EXIF data, preferring
// DateTimeOriginal, then DateTimeDigitized, then DateTime.
type ExifExtractor struct{}

func (ExifExtractor) CaptureTime(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, ErrNoTimestamp
	}

	sawTag := false
	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime} {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		sawTag = true
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		// EXIF timestamps carry no zone; cameras record local wall time.
		t, err := time.ParseInLocation(exifTimeLayout, s, time.Local)
		if err == nil {
			return t, nil
		}
	}
	if sawTag {
		return time.Time{}, ErrBadTimestamp
	}
	return time.Time{}, ErrNoTimestamp
}

package photoverify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"orderkato/models"

	"github.com/google/uuid"
)

var (
	// ErrWrongMode: the photo arrived as a compressed/inline photo
	// instead of a file attachment. Compression strips metadata.
	ErrWrongMode = errors.New("photo sent as compressed image, not as a file")
	// ErrNotImage: the attached document is not an image at all.
	ErrNotImage = errors.New("attached file is not an image")
	// ErrNoTimestamp: the image carries no capture-timestamp metadata.
	ErrNoTimestamp = errors.New("no capture timestamp in image metadata")
	// ErrBadTimestamp: a timestamp tag is present but malformed.
	ErrBadTimestamp = errors.New("capture timestamp in image metadata is malformed")
	// ErrFutureTimestamp: capture time is ahead of now beyond clock-skew tolerance.
	ErrFutureTimestamp = errors.New("capture timestamp is in the future")
)

// StaleError is returned when the photo is older than the freshness window.
type StaleError struct {
	TakenAt time.Time
	Age     time.Duration
	MaxAge  time.Duration
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("photo is stale: taken %s ago, maximum allowed %s",
		e.Age.Round(time.Second), e.MaxAge)
}

// TimestampExtractor extracts the capture timestamp from an image file.
// Implementations return ErrNoTimestamp or ErrBadTimestamp.
type TimestampExtractor interface {
	CaptureTime(path string) (time.Time, error)
}

// Input is one inbound photo payload with the shop/user context of the
// conversation step it arrived in.
type Input struct {
	TempPath string // local path of the downloaded document
	FileName string // original file name, used for the extension
	MimeType string
	Inline   bool // true when the transport delivered a compressed photo
	ShopID   int64
	UserID   int64
}

// Verifier checks photo freshness and, on accept, performs the single
// durable write: the stored file plus its metadata record.
type Verifier struct {
	Extract TimestampExtractor
	Record  func(ctx context.Context, p models.VerifiedPhoto) error
	Dir     string
	MaxAge  time.Duration
	Skew    time.Duration

	now func() time.Time // test hook
}

func New(extract TimestampExtractor, record func(context.Context, models.VerifiedPhoto) error,
	dir string, maxAge, skew time.Duration) *Verifier {
	return &Verifier{
		Extract: extract,
		Record:  record,
		Dir:     dir,
		MaxAge:  maxAge,
		Skew:    skew,
		now:     time.Now,
	}
}

// Verify validates the payload and, on accept, stores it under a
// collision-free name and records it. Rejects leave no trace on disk.
func (v *Verifier) Verify(ctx context.Context, in Input) (*models.VerifiedPhoto, error) {
	if in.Inline {
		return nil, ErrWrongMode
	}
	if in.MimeType != "" && !isImageMime(in.MimeType) {
		return nil, ErrNotImage
	}

	takenAt, err := v.Extract.CaptureTime(in.TempPath)
	if err != nil {
		return nil, err
	}

	now := v.now()
	age := now.Sub(takenAt)
	if age < -v.Skew {
		return nil, ErrFutureTimestamp
	}
	if age > v.MaxAge {
		return nil, &StaleError{TakenAt: takenAt, Age: age, MaxAge: v.MaxAge}
	}

	ext := filepath.Ext(in.FileName)
	if ext == "" {
		ext = filepath.Ext(in.TempPath)
	}
	if ext == "" {
		ext = ".jpg"
	}
	name := fmt.Sprintf("shop_%d_user_%d_%s_%s%s",
		in.ShopID, in.UserID, now.Format("20060102_150405"), uuid.NewString()[:8], ext)

	if err := os.MkdirAll(v.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	dest := filepath.Join(v.Dir, name)
	if err := copyFile(in.TempPath, dest); err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}

	photo := models.VerifiedPhoto{
		Path:     filepath.ToSlash(filepath.Join(filepath.Base(v.Dir), name)),
		ShopID:   in.ShopID,
		UserID:   in.UserID,
		TakenAt:  takenAt,
		StoredAt: now,
	}
	if v.Record != nil {
		if err := v.Record(ctx, photo); err != nil {
			os.Remove(dest)
			return nil, fmt.Errorf("record photo: %w", err)
		}
	}
	return &photo, nil
}

func isImageMime(mime string) bool {
	return len(mime) > 6 && mime[:6] == "image/"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

package storage

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Purpose selects the bucket, object name and accepted types for a document.
type Purpose string

const (
	PurposeCV     Purpose = "cv"
	PurposeAvatar Purpose = "avatar"
	PurposeLogo   Purpose = "logo"
)

// MaxDocumentSize is the largest upload accepted for any purpose.
const MaxDocumentSize = 10 << 20

type rule struct {
	bucket   string
	stem     string
	fallback string
	allowed  []string
	message  string
}

var rules = map[Purpose]rule{
	PurposeCV: {
		bucket:   "cvs",
		stem:     "cv",
		fallback: "pdf",
		allowed:  []string{"application/pdf", "image/png", "image/jpeg"},
		message:  "Sube un PDF o imagen (PNG/JPG).",
	},
	PurposeAvatar: {
		bucket:   "avatars",
		stem:     "avatar",
		fallback: "png",
		allowed:  []string{"image/png", "image/jpeg"},
		message:  "Sube una imagen PNG/JPG.",
	},
	PurposeLogo: {
		bucket:   "logos",
		stem:     "logo",
		fallback: "png",
		allowed:  []string{"image/png", "image/jpeg"},
		message:  "Sube una imagen PNG/JPG.",
	},
}

// ErrUnsupportedType is returned when the uploaded bytes are not an accepted type.
type ErrUnsupportedType struct {
	Purpose  Purpose
	Detected string
	Message  string
}

func (e *ErrUnsupportedType) Error() string {
	return fmt.Sprintf("unsupported %s type %s", e.Purpose, e.Detected)
}

// ErrTooLarge is returned when an upload exceeds MaxDocumentSize.
type ErrTooLarge struct {
	Size int
}

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("document of %d bytes exceeds the %d byte limit", e.Size, MaxDocumentSize)
}

// Objects is the subset of Client used by Documents.
type Objects interface {
	Upload(ctx context.Context, bucket, path, contentType string, data []byte, upsert bool) error
	Remove(ctx context.Context, bucket string, paths []string) error
	List(ctx context.Context, bucket, prefix, search string) ([]Object, error)
	PublicURL(bucket, path string) string
}

// Documents stores one document per owner and purpose at <owner>/<stem>.<ext>.
type Documents struct {
	objects Objects
	log     *logrus.Logger
}

// NewDocuments creates a document service backed by objects.
func NewDocuments(objects Objects, log *logrus.Logger) *Documents {
	return &Documents{objects: objects, log: log}
}

// extension names the object after the sniffed type, never the client filename.
func extension(m *mimetype.MIME, fallback string) string {
	if ext := strings.TrimPrefix(m.Extension(), "."); ext != "" {
		return ext
	}
	return fallback
}

// Replace validates data, uploads it as the owner's document for purpose and
// removes any previous copy stored under another extension. It returns the
// public URL to persist on the profile or company row.
func (d *Documents) Replace(ctx context.Context, purpose Purpose, ownerID uuid.UUID, filename string, data []byte) (string, error) {
	r, ok := rules[purpose]
	if !ok {
		return "", fmt.Errorf("unknown document purpose %q", purpose)
	}
	if len(data) > MaxDocumentSize {
		return "", &ErrTooLarge{Size: len(data)}
	}

	detected := mimetype.Detect(data)
	if !isAny(detected, r.allowed) {
		return "", &ErrUnsupportedType{Purpose: purpose, Detected: detected.String(), Message: r.message}
	}

	ext := extension(detected, r.fallback)
	if claimed := strings.ToLower(strings.TrimPrefix(path.Ext(filename), ".")); claimed != "" && claimed != ext {
		d.log.WithFields(logrus.Fields{"owner_id": ownerID, "filename": filename, "detected": detected.String()}).
			Debug("upload extension does not match its content")
	}

	name := r.stem + "." + ext
	objectPath := ownerID.String() + "/" + name
	if err := d.objects.Upload(ctx, r.bucket, objectPath, contentType(detected), data, true); err != nil {
		return "", err
	}

	// the new object is in place; stale copies are cleanup only
	if stale, err := d.matching(ctx, r, ownerID, name); err != nil {
		d.log.WithError(err).WithField("owner_id", ownerID).Warn("failed to list previous documents")
	} else if err := d.objects.Remove(ctx, r.bucket, stale); err != nil {
		d.log.WithError(err).WithField("owner_id", ownerID).Warn("failed to remove previous documents")
	}

	return d.objects.PublicURL(r.bucket, objectPath), nil
}

// Remove deletes every stored copy of the owner's document for purpose.
func (d *Documents) Remove(ctx context.Context, purpose Purpose, ownerID uuid.UUID) error {
	r, ok := rules[purpose]
	if !ok {
		return fmt.Errorf("unknown document purpose %q", purpose)
	}
	paths, err := d.matching(ctx, r, ownerID, "")
	if err != nil {
		return err
	}
	return d.objects.Remove(ctx, r.bucket, paths)
}

// matching lists the owner's <stem>.* objects other than keep.
func (d *Documents) matching(ctx context.Context, r rule, ownerID uuid.UUID, keep string) ([]string, error) {
	prefix := ownerID.String()
	objects, err := d.objects.List(ctx, r.bucket, prefix, r.stem+".")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, o := range objects {
		if strings.HasPrefix(o.Name, r.stem+".") && o.Name != keep {
			paths = append(paths, prefix+"/"+o.Name)
		}
	}
	return paths, nil
}

func isAny(m *mimetype.MIME, types []string) bool {
	for _, t := range types {
		if m.Is(t) {
			return true
		}
	}
	return false
}

// contentType drops parameters such as charset from the detected type.
func contentType(m *mimetype.MIME) string {
	ct, _, _ := strings.Cut(m.String(), ";")
	return ct
}

// CacheBust appends a timestamp query parameter so clients reload a replaced object.
func CacheBust(rawURL string, now time.Time) string {
	if rawURL == "" {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "t=" + strconv.FormatInt(now.UnixMilli(), 10)
}

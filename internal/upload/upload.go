// Package upload gates user-selected files by type before handing them to a
// consumer. It performs no content scanning.
package upload

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Accept tokens used by the dashboard.
const (
	AcceptAny      = "*"
	AcceptTemplate = ".docx"
	AcceptBundle   = ".zip"
)

// ErrRejected marks a file that failed the type gate.
var ErrRejected = errors.New("upload: file type not accepted")

// File is a selected file held in memory.
type File struct {
	Name      string
	MediaType string
	Data      []byte
}

// Open reads a local file and detects its media type from the extension,
// falling back to content sniffing.
func Open(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	name := filepath.Base(path)
	return File{Name: name, MediaType: DetectMediaType(name, data), Data: data}, nil
}

// DetectMediaType guesses a media type. Unknown extensions with binary
// content report application/octet-stream.
func DetectMediaType(name string, data []byte) string {
	if ext := filepath.Ext(name); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	if len(data) == 0 {
		return ""
	}
	return http.DetectContentType(data)
}

// Accepts applies the acceptance rule: wildcard, media type containing the
// accept token, or file name ending with the literal accept suffix.
func Accepts(file File, accept string) bool {
	accept = strings.TrimSpace(accept)
	if accept == AcceptAny {
		return true
	}
	if accept == "" {
		return false
	}
	token := strings.Replace(accept, ".", "", 1)
	if token != "" && strings.Contains(file.MediaType, token) {
		return true
	}
	return strings.HasSuffix(file.Name, accept)
}

// Consumer receives accepted files.
type Consumer func(ctx context.Context, file File) error

// Uploader validates selections and forwards accepted files.
type Uploader struct {
	Accept   string
	Consumer Consumer
	// OnReject is notified synchronously for every rejected file.
	OnReject func(File, error)
	// OnReset runs after every attempt so the input can be cleared.
	OnReset func()
}

// Select validates the file and, if accepted, hands it to the consumer. The
// consumer's error is returned unchanged.
func (u *Uploader) Select(ctx context.Context, file File) error {
	defer u.reset()
	if !Accepts(file, u.Accept) {
		err := fmt.Errorf("%w: %s is not %s", ErrRejected, file.Name, u.Accept)
		if u.OnReject != nil {
			u.OnReject(file, err)
		}
		return err
	}
	if u.Consumer == nil {
		return nil
	}
	return u.Consumer(ctx, file)
}

// SelectPath opens path and selects it. Read failures count as an attempt.
func (u *Uploader) SelectPath(ctx context.Context, path string) error {
	file, err := Open(strings.TrimSpace(path))
	if err != nil {
		u.reset()
		return fmt.Errorf("upload: open %s: %w", path, err)
	}
	return u.Select(ctx, file)
}

func (u *Uploader) reset() {
	if u.OnReset != nil {
		u.OnReset()
	}
}

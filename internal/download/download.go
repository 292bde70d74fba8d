// Package download fetches server artifacts and installs them atomically.
//
// An artifact is streamed into a hidden temp file next to its final path,
// verified, then renamed into place. A crash at any point leaves at most a
// ".<name>.partial-*" file behind, which the next attempt removes.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nicdgonzalez/axiom/internal/paper"
)

var (
	ErrDownloadFailed   = errors.New("download failed")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrInstallFailed    = errors.New("install failed")
)

// Source opens an artifact stream. size is -1 when unknown.
type Source interface {
	Open(ctx context.Context, url string) (body io.ReadCloser, size int64, err error)
}

// Progress is called as bytes arrive. total is -1 when unknown.
type Progress func(written, total int64)

// Installer downloads and installs targets.
type Installer struct {
	src Source
	log zerolog.Logger
}

// New creates an Installer reading from src.
func New(src Source, logger zerolog.Logger) *Installer {
	return &Installer{
		src: src,
		log: logger.With().Str("component", "download").Logger(),
	}
}

// PartialPattern is the glob matching temp files left for file.
func PartialPattern(file string) string {
	return "." + file + ".partial-*"
}

// FetchAndInstall places the artifact of target at destDir/<file name> and
// returns that path. If a file with the expected checksum is already there it
// is returned without downloading. progress may be nil.
func (d *Installer) FetchAndInstall(ctx context.Context, target paper.Target, destDir string, progress Progress) (string, error) {
	name := target.FileName
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: invalid artifact name %q", ErrInstallFailed, name)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	final := filepath.Join(destDir, name)
	log := d.log.With().Str("target", target.String()).Str("path", final).Logger()

	if target.SHA256 != "" {
		if sum, err := FileSHA256(final); err == nil && strings.EqualFold(sum, target.SHA256) {
			log.Debug().Msg("artifact already installed")
			return final, nil
		}
	}

	if err := RemovePartials(destDir, name); err != nil {
		log.Warn().Err(err).Msg("failed to remove leftover partial downloads")
	}

	tmp, err := os.CreateTemp(destDir, PartialPattern(name))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	body, size, err := d.src.Open(ctx, target.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer body.Close()

	hash := sha256.New()
	var dst io.Writer = io.MultiWriter(tmp, hash)
	if progress != nil {
		dst = io.MultiWriter(dst, &progressWriter{fn: progress, total: size})
	}

	log.Debug().Int64("size", size).Msg("downloading")
	n, err := io.Copy(dst, body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if size >= 0 && n != size {
		return "", fmt.Errorf("%w: received %d of %d bytes", ErrDownloadFailed, n, size)
	}

	sum := hex.EncodeToString(hash.Sum(nil))
	if target.SHA256 != "" && !strings.EqualFold(sum, target.SHA256) {
		return "", fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, sum, strings.ToLower(target.SHA256))
	}

	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	committed = true
	syncDir(destDir)

	log.Info().Int64("bytes", n).Msg("artifact installed")
	return final, nil
}

// RemovePartials deletes temp files left behind for file in dir.
func RemovePartials(dir, file string) error {
	matches, err := filepath.Glob(filepath.Join(dir, PartialPattern(file)))
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FileSHA256 returns the hex sha256 of the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// syncDir flushes the rename to disk. Failure only weakens durability.
func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
}

type progressWriter struct {
	fn      Progress
	total   int64
	written int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	p.fn(p.written, p.total)
	return len(b), nil
}

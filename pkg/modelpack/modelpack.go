// Package modelpack stages packaged recognition models into a local data
// directory.
//
// Offline recognizers need their model on disk. Deployments ship the model as
// a zip bundle (or a plain directory), and Unpack stages it under the data
// directory exactly once: a bundle that has already been staged is detected
// and reused, so repeated startups cost one stat call.
package modelpack

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Unpack stages the model bundle at bundlePath into dataDir and returns the
// path of the staged model directory.
//
// bundlePath may be a zip archive or a plain directory. The staged directory
// is named after the bundle (zip extension stripped). When that directory
// already exists, Unpack returns it without touching the bundle, so partial
// writes from a crashed run must be cleaned up by removing the directory.
func Unpack(bundlePath, dataDir string) (string, error) {
	info, err := os.Stat(bundlePath)
	if err != nil {
		return "", fmt.Errorf("modelpack: stat bundle %q: %w", bundlePath, err)
	}

	target := filepath.Join(dataDir, strings.TrimSuffix(filepath.Base(bundlePath), ".zip"))
	if _, err := os.Stat(target); err == nil {
		slog.Debug("model already staged", "dir", target)
		return target, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("modelpack: stat target %q: %w", target, err)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("modelpack: create data dir %q: %w", dataDir, err)
	}

	// Stage into a temporary sibling and rename, so a crash mid-unpack never
	// leaves a half-staged directory under the final name.
	staging, err := os.MkdirTemp(dataDir, ".staging-*")
	if err != nil {
		return "", fmt.Errorf("modelpack: create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if info.IsDir() {
		err = copyTree(bundlePath, staging)
	} else {
		err = extractZip(bundlePath, staging)
	}
	if err != nil {
		return "", err
	}

	if err := os.Rename(staging, target); err != nil {
		return "", fmt.Errorf("modelpack: finalize %q: %w", target, err)
	}
	slog.Info("model staged", "bundle", bundlePath, "dir", target)
	return target, nil
}

// copyTree copies the directory tree at src into dst.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(out, 0o755)
		}
		if !d.Type().IsRegular() {
			slog.Debug("skipping non-regular file in bundle", "path", path)
			return nil
		}
		return copyFile(path, out)
	})
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
		return err
	}
	return out.Close()
}

// extractZip extracts the archive at src into dst, rejecting entries whose
// paths would escape dst.
func extractZip(src, dst string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("modelpack: open archive %q: %w", src, err)
	}
	defer r.Close()

	for _, f := range r.File {
		out, err := sanitizePath(dst, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, out); err != nil {
			return fmt.Errorf("modelpack: extract %q: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, out string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	w, err := os.Create(out)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, rc); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// sanitizePath joins name under dir and fails if the result escapes dir.
func sanitizePath(dir, name string) (string, error) {
	out := filepath.Join(dir, filepath.FromSlash(name))
	if out != dir && !strings.HasPrefix(out, dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("modelpack: archive entry %q escapes the target directory", name)
	}
	return out, nil
}

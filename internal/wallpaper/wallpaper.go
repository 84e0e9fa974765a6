// Package wallpaper persists generated images and applies them as the
// system background.
package wallpaper

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Store writes wallpapers into a directory and keeps a symlink pointing at
// the most recent one.
type Store struct {
	Dir     string
	Symlink string
	Logger  *slog.Logger
}

func NewStore(dir, symlink string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Dir: dir, Symlink: symlink, Logger: logger}
}

// Save writes the image under a timestamped name and returns its path.
func (s *Store) Save(data []byte, now time.Time) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create wallpaper dir: %w", err)
	}
	name := fmt.Sprintf("wallpaper-%s.png", now.Format("2006-01-02-150405"))
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write wallpaper: %w", err)
	}
	s.Logger.Info("wallpaper saved", "path", path, "bytes", len(data))
	return path, nil
}

// Link points the symlink at the given image. Remove-then-create: any prior
// symlink or regular file at that path is replaced, though the swap is not
// atomic on every filesystem.
func (s *Store) Link(imagePath string) error {
	if err := os.MkdirAll(filepath.Dir(s.Symlink), 0o755); err != nil {
		return fmt.Errorf("create symlink dir: %w", err)
	}
	if _, err := os.Lstat(s.Symlink); err == nil {
		if err := os.Remove(s.Symlink); err != nil {
			return fmt.Errorf("remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(imagePath, s.Symlink); err != nil {
		return fmt.Errorf("create symlink: %w", err)
	}
	s.Logger.Info("symlink updated", "link", s.Symlink, "target", imagePath)
	return nil
}

// Setter applies an image as the system background.
type Setter interface {
	Set(imagePath string) error
}

// SwaybgSetter restarts swaybg pointed at the new image. Killing the old
// instance first avoids stacked background processes.
type SwaybgSetter struct {
	Path   string
	Logger *slog.Logger
}

func NewSwaybgSetter(path string, logger *slog.Logger) *SwaybgSetter {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = "swaybg"
	}
	return &SwaybgSetter{Path: path, Logger: logger}
}

func (s *SwaybgSetter) Set(imagePath string) error {
	// pkill failing just means no previous instance was running.
	_ = exec.Command("pkill", "swaybg").Run()
	time.Sleep(500 * time.Millisecond)

	cmd := exec.Command(s.Path, "-i", imagePath, "-m", "fill")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start swaybg: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		s.Logger.Warn("release swaybg process", "error", err)
	}
	s.Logger.Info("background set", "image", imagePath)
	return nil
}

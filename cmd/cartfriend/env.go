package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/cartfriend/cartfriend/go/cartfriend/internal/workenv"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/cart"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/logging"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/progress"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/session"
	"github.com/cartfriend/cartfriend/go/cartfriend/pkg/settings"
)

// cartEnv is an opened cartridge image with a booted session.
type cartEnv struct {
	dir      string
	manifest workenv.Manifest
	image    *cart.Image
	session  *session.Session
	loaded   settings.LoadResult
	logger   hclog.Logger
}

func (e *cartEnv) store() *settings.Store {
	return e.session.Store()
}

func (e *cartEnv) record() *settings.Record {
	return e.session.Store().Record()
}

func newLogger() hclog.Logger {
	level := logLevel
	if level == "" {
		level = logging.GetLogLevel()
	}
	return logging.NewLogger("cartfriend", level, os.Stderr)
}

func imagePath() string {
	root := imageDir
	if root == "" {
		root = workenv.GetImageRoot()
	}
	return workenv.GetImagePath(root, imageName)
}

// cliDisplay stands in for the cartridge UI.
type cliDisplay struct {
	logger hclog.Logger
}

func (d cliDisplay) ApplyTheme(theme uint8, flags settings.Flags1) {
	d.logger.Debug("🎨 Theme applied", "theme", theme, "flags", flags)
}

func (d cliDisplay) Acknowledge(message string) {
	color.New(color.FgYellow).Fprintf(os.Stderr, "⚠️  %s\n", message)
}

// withImage opens the current image, boots a session on it and runs fn.
// When write is set the settings are saved and the image written back
// afterwards.
func withImage(write bool, fn func(env *cartEnv) error) error {
	logger := newLogger()
	fs := afero.NewOsFs()
	dir := imagePath()

	m, err := workenv.ReadManifest(fs, dir)
	if err != nil {
		return fmt.Errorf("image %q: %w", dir, err)
	}

	lock := cart.NewHostLock(fs, filepath.Join(dir, workenv.LockFile), logger.Named(logging.ComponentLock))
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()

	im, err := cart.OpenImage(fs, filepath.Join(dir, m.FlashFile), filepath.Join(dir, m.SRAMFile), m.LaunchSlot, logger.Named(logging.ComponentImage))
	if err != nil {
		return err
	}

	sess, res := session.Boot(im, im.SRAM,
		session.WithLogger(logger),
		session.WithDisplay(cliDisplay{logger: logger}),
		session.WithIndicator(progress.NewLogger(logger.Named(logging.ComponentProgress), 25)),
	)

	env := &cartEnv{
		dir:      dir,
		manifest: m,
		image:    im,
		session:  sess,
		loaded:   res,
		logger:   logger,
	}
	if err := fn(env); err != nil {
		return err
	}

	if !write {
		return nil
	}
	sess.Store().Save()
	return im.Flush()
}

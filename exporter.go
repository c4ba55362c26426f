package media

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// downloadBlobType is the type downloads are tagged with, whatever format
// was recorded.
const downloadBlobType = "video/webm"

// Downloader saves the blob behind an object URL under a file name (like
// clicking an <a download> link).
type Downloader interface {
	Save(url, filename string) error
}

// DownloaderFunc adapts a function to Downloader.
type DownloaderFunc func(url, filename string) error

func (f DownloaderFunc) Save(url, filename string) error { return f(url, filename) }

// DirDownloader writes downloads into a directory.
type DirDownloader struct {
	dir  string
	urls *ObjectURLs
}

// NewDirDownloader creates a downloader resolving URLs through urls.
func NewDirDownloader(dir string, urls *ObjectURLs) *DirDownloader {
	return &DirDownloader{dir: dir, urls: urls}
}

// Save implements Downloader.
func (d *DirDownloader) Save(url, filename string) error {
	blob, ok := d.urls.Resolve(url)
	if !ok {
		return fmt.Errorf("unknown object url %s", url)
	}
	path := filepath.Join(d.dir, filepath.Base(filename))
	if err := os.WriteFile(path, blob.data, 0o644); err != nil {
		return fmt.Errorf("failed to save download: %w", err)
	}
	return nil
}

// Play assembles the recorded chunks into one blob typed with the base type
// of the recorded format and publishes it as the playback source.
func (c *Controller) Play() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if err := c.exportableLocked(); err != nil {
		publish := c.failLocked(err)
		c.mu.Unlock()
		publish()
		return err
	}

	typ := BaseType(c.recordedMime)
	blob := ConcatBlobs(typ, c.chunks)
	c.revokePlaybackLocked()
	c.playback = Playback{URL: c.cfg.ObjectURLs.Create(blob), Type: typ, Playing: true}
	publish := c.commitLocked()
	c.mu.Unlock()
	publish()

	c.logger.Info("playback started", zap.String("type", typ), zap.Int("bytes", blob.Size()))
	return nil
}

// PlaybackEnded marks the playback surface as no longer playing. The URL
// stays valid so the clip can be replayed.
func (c *Controller) PlaybackEnded() {
	c.mu.Lock()
	if c.closed || !c.playback.Playing {
		c.mu.Unlock()
		return
	}
	c.playback.Playing = false
	publish := c.commitLocked()
	c.mu.Unlock()
	publish()
}

// Download assembles the recorded chunks and hands them to the Downloader
// under the configured file name. The temporary URL is revoked after the
// revoke delay, not immediately.
func (c *Controller) Download() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if err := c.exportableLocked(); err != nil {
		publish := c.failLocked(err)
		c.mu.Unlock()
		publish()
		return err
	}

	blob := ConcatBlobs(downloadBlobType, c.chunks)
	urls := c.cfg.ObjectURLs
	url := urls.Create(blob)
	c.revokes[url] = time.AfterFunc(c.cfg.RevokeDelay, func() {
		urls.Revoke(url)
		c.mu.Lock()
		delete(c.revokes, url)
		c.mu.Unlock()
	})
	filename := c.cfg.DownloadFilename
	c.mu.Unlock()

	if err := c.cfg.Downloader.Save(url, filename); err != nil {
		err = fmt.Errorf("download error: %w", err)
		c.mu.Lock()
		publish := c.failLocked(err)
		c.mu.Unlock()
		publish()
		c.logger.Warn("download failed", zap.String("filename", filename), zap.Error(err))
		return err
	}

	c.logger.Info("download triggered", zap.String("filename", filename), zap.Int("bytes", blob.Size()))
	return nil
}

func (c *Controller) exportableLocked() error {
	if c.state == StateRecording {
		return fmt.Errorf("%w: recording in progress", ErrInvalidState)
	}
	if len(c.chunks) == 0 {
		return ErrNoRecording
	}
	return nil
}

func (c *Controller) revokePlaybackLocked() {
	if c.playback.URL != "" {
		c.cfg.ObjectURLs.Revoke(c.playback.URL)
	}
	c.playback = Playback{}
}

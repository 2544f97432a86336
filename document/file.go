package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hupe1980/quill/logging"
)

// FileOptions configures a File document.
type FileOptions struct {
	// DebounceDelay is how long to wait for more changes before reloading.
	DebounceDelay time.Duration
	// Perm is used when the file is created. Defaults to 0644.
	Perm os.FileMode
	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger
}

// File is a Document backed by a plain text file.
type File struct {
	path   string
	opts   FileOptions
	logger logging.Logger

	mu   sync.RWMutex
	text string
}

// OpenFile loads the file at path. A missing file starts out empty and is
// created on the first SetContent.
func OpenFile(path string, optFns ...func(o *FileOptions)) (*File, error) {
	opts := FileOptions{
		DebounceDelay: 200 * time.Millisecond,
		Perm:          0644,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve document path: %w", err)
	}

	f := &File{path: abs, opts: opts, logger: opts.Logger}
	if _, err := f.reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return f, nil
}

// Path returns the absolute file path.
func (f *File) Path() string { return f.path }

// Content implements Document.
func (f *File) Content() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.text
}

// SetContent implements Document. The file is replaced atomically through a
// temporary file in the same directory.
func (f *File) SetContent(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Chmod(f.opts.Perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}

	f.text = text
	return nil
}

// reload reads the file and reports whether its text differs from the cached text.
func (f *File) reload() (bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := string(data) != f.text
	f.text = string(data)
	return changed, nil
}

// Watch calls onChange with the new text whenever the file is changed by
// someone else. Writes made through SetContent do not trigger onChange.
// Watch blocks until ctx is done.
func (f *File) Watch(ctx context.Context, onChange func(text string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors often replace files instead of writing them.
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(f.path), err)
	}
	f.logger.Info("Document watcher started", "path", f.path, "debounce", f.opts.DebounceDelay)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(f.opts.DebounceDelay)
			} else {
				timer.Reset(f.opts.DebounceDelay)
			}
			timerCh = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("Document watcher error", "path", f.path, "error", err)
		case <-timerCh:
			timerCh = nil
			changed, err := f.reload()
			if err != nil {
				if !os.IsNotExist(err) {
					f.logger.Warn("Failed to reload document", "path", f.path, "error", err)
				}
				continue
			}
			if changed {
				f.logger.Debug("Document changed on disk", "path", f.path)
				onChange(f.Content())
			}
		}
	}
}

// Package watch regenerates contract artifacts when scanned source changes.
// A session watches the expanded package roots, debounces change bursts,
// re-runs the compiler, and broadcasts the outcome to reload clients.
package watch

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher monitors the package roots for Go source changes and triggers
// the change callback after debouncing.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	roots     []string
	ignored   []string
	onChange  func([]string) error
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewFileWatcher creates a watcher over the given root directories. ignored
// holds base-name patterns (filepath.Match) excluded from triggering.
func NewFileWatcher(roots, ignored []string, debounce time.Duration, onChange func([]string) error) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher:   watcher,
		debouncer: NewDebouncer(debounce),
		roots:     roots,
		ignored:   ignored,
		onChange:  onChange,
		stopChan:  make(chan struct{}),
	}

	fw.debouncer.SetCallback(func(files []string) {
		if err := fw.onChange(files); err != nil {
			log.Printf("[Watch] Error handling file changes: %v", err)
		}
	})

	return fw, nil
}

// Start begins watching the file system.
func (fw *FileWatcher) Start() error {
	dirs, err := fw.findDirectories()
	if err != nil {
		return fmt.Errorf("failed to find directories: %w", err)
	}

	for _, dir := range dirs {
		if err := fw.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
		log.Printf("[Watch] Watching directory: %s", dir)
	}

	fw.wg.Add(1)
	go fw.watch()

	return nil
}

// Stop stops the file watcher.
func (fw *FileWatcher) Stop() error {
	select {
	case <-fw.stopChan:
		// Already stopped.
		return nil
	default:
		close(fw.stopChan)
	}

	fw.wg.Wait()
	fw.debouncer.Stop()
	return fw.watcher.Close()
}

// watch is the main event loop.
func (fw *FileWatcher) watch() {
	defer fw.wg.Done()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if fw.shouldIgnore(event.Name) {
				continue
			}

			// A created directory needs its own watch; fsnotify is not
			// recursive.
			if event.Op&fsnotify.Create == fsnotify.Create && isDir(event.Name) {
				if err := fw.watcher.Add(event.Name); err == nil {
					log.Printf("[Watch] Watching directory: %s", event.Name)
				}
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if isGoSource(event.Name) {
					log.Printf("[Watch] File changed: %s", event.Name)
					fw.debouncer.Add(event.Name)
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Watch] Error: %v", err)

		case <-fw.stopChan:
			return
		}
	}
}

// findDirectories walks every root for subdirectories to watch, skipping the
// same directories the loader skips.
func (fw *FileWatcher) findDirectories() ([]string, error) {
	var dirs []string
	for _, root := range fw.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			name := d.Name()
			if path != root {
				if name == "vendor" || name == "testdata" ||
					strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
					return filepath.SkipDir
				}
			}
			dirs = append(dirs, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return dirs, nil
}

// shouldIgnore checks if a file path should be ignored.
func (fw *FileWatcher) shouldIgnore(path string) bool {
	baseName := filepath.Base(path)
	if strings.HasPrefix(baseName, ".") {
		return true
	}

	for _, pattern := range fw.ignored {
		if matched, _ := filepath.Match(pattern, baseName); matched {
			return true
		}
	}

	return false
}

// isGoSource reports whether a change to the path affects contract
// generation. Generated artifacts carry the rpc.gen infix and never
// retrigger.
func isGoSource(path string) bool {
	if filepath.Ext(path) != ".go" {
		return false
	}
	base := filepath.Base(path)
	if strings.HasSuffix(base, "_test.go") {
		return false
	}
	return !strings.Contains(base, ".rpc.gen.")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Debouncer collects file changes and triggers the callback after a quiet
// period, so an editor save burst regenerates once.
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	files    map[string]struct{}
	mutex    sync.Mutex
	callback func([]string)
	stopChan chan struct{}
}

// NewDebouncer creates a new debouncer instance.
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		files:    make(map[string]struct{}),
		stopChan: make(chan struct{}),
	}
}

// Add adds a file to the debouncer.
func (d *Debouncer) Add(file string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.files[file] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.duration, func() {
		d.flush()
	})
}

// flush triggers the callback with accumulated files.
func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.files) == 0 {
		return
	}

	files := make([]string, 0, len(d.files))
	for file := range d.files {
		files = append(files, file)
	}

	d.files = make(map[string]struct{})

	if d.callback != nil {
		d.callback(files)
	}
}

// SetCallback sets the callback function.
func (d *Debouncer) SetCallback(callback func([]string)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.callback = callback
}

// Stop stops the debouncer.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	select {
	case <-d.stopChan:
		// Already stopped.
	default:
		close(d.stopChan)
	}
}

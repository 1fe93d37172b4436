package native

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/guseggert/hostbridge/envelope"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

type FSConfig struct {
	Log *zap.SugaredLogger
	// AppDir is reported by get_application_dir_path.
	AppDir string
	// HTTPClient is used by download_uri. A retrying client is built when nil.
	HTTPClient *http.Client
}

type WriteOptions struct {
	Append bool `json:"append"`
}

type RmOptions struct {
	Recursive bool `json:"recursive"`
}

type CopyOptions struct {
	Overwrite bool `json:"overwrite"`
}

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

func newDownloadClient(log *zap.SugaredLogger) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = &logAdapter{SugaredLogger: log}
	return retryClient.StandardClient()
}

type fsCalls struct {
	log    *zap.SugaredLogger
	appDir string
	client *http.Client
}

// RegisterFS binds the FS namespace. Paths are used as given.
// Failures the page can act on are reported as false or absence and logged, never as call errors.
func RegisterFS(t *Table, cfg FSConfig) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.Named("fs")
	f := &fsCalls{log: log, appDir: cfg.AppDir, client: cfg.HTTPClient}
	if f.appDir == "" {
		if exe, err := os.Executable(); err == nil {
			f.appDir = filepath.Dir(exe)
		}
	}
	if f.client == nil {
		f.client = newDownloadClient(log)
	}

	t.Bind(Name("read_file"), f.readFile)
	t.Bind(Name("write_file"), f.writeFile)
	t.Bind(Name("exists"), pathPredicate(func(fi os.FileInfo) bool { return true }))
	t.Bind(Name("is_dir"), pathPredicate(func(fi os.FileInfo) bool { return fi.IsDir() }))
	t.Bind(Name("mk_dir"), f.mkDir)
	t.Bind(Name("rm"), f.rm)
	t.Bind(Name("ls"), f.ls)
	t.Bind(Name("rename"), f.move(os.Rename))
	t.Bind(Name("copy"), f.move(copyPath))
	t.Bind(Name("get_application_dir_path"), func(context.Context, Args) (any, error) {
		return envelope.Encode(f.appDir), nil
	})
	t.Bind(Name("download_uri"), f.download)
}

func pathPredicate(pred func(fi os.FileInfo) bool) Func {
	return func(ctx context.Context, args Args) (any, error) {
		path, err := args.String(0)
		if err != nil {
			return nil, err
		}
		fi, err := os.Stat(path)
		if err != nil {
			return false, nil
		}
		return pred(fi), nil
	}
}

func (f *fsCalls) readFile(ctx context.Context, args Args) (any, error) {
	path, err := args.String(0)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		f.log.Debugw("read of missing file", "Path", path)
		return nil, nil
	}
	if fi.IsDir() {
		f.log.Debugw("read of a directory, use ls", "Path", path)
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		f.log.Errorw("error reading file", "Path", path, "Error", err)
		return nil, nil
	}
	return envelope.EncodeBytes(b), nil
}

func (f *fsCalls) writeFile(ctx context.Context, args Args) (any, error) {
	path, err := args.String(0)
	if err != nil {
		return nil, err
	}
	contents, err := args.Bytes(1)
	if err != nil {
		return nil, err
	}
	var opts WriteOptions
	if err := args.Decode(2, &opts); err != nil {
		return nil, err
	}

	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		f.log.Errorw("can't write to a directory", "Path", path)
		return false, nil
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		f.log.Errorw("parent directory doesn't exist", "Path", path)
		return false, nil
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if opts.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		f.log.Errorw("error opening file for writing", "Path", path, "Error", err)
		return false, nil
	}
	defer file.Close()
	if _, err := file.Write(contents); err != nil {
		f.log.Errorw("error writing file", "Path", path, "Error", err)
		return false, nil
	}
	f.log.Debugw("wrote file", "Path", path, "Bytes", len(contents), "Append", opts.Append)
	return true, nil
}

func (f *fsCalls) mkDir(ctx context.Context, args Args) (any, error) {
	path, err := args.String(0)
	if err != nil {
		return nil, err
	}
	if err := os.Mkdir(path, 0755); err != nil {
		f.log.Errorw("error creating directory", "Path", path, "Error", err)
		return false, nil
	}
	return true, nil
}

func (f *fsCalls) rm(ctx context.Context, args Args) (any, error) {
	path, err := args.String(0)
	if err != nil {
		return nil, err
	}
	var opts RmOptions
	if err := args.Decode(1, &opts); err != nil {
		return nil, err
	}
	if _, err := os.Lstat(path); err != nil {
		f.log.Errorw("can't remove a path that doesn't exist", "Path", path)
		return false, nil
	}
	if opts.Recursive {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		f.log.Errorw("error removing path", "Path", path, "Error", err)
		return false, nil
	}
	return true, nil
}

func (f *fsCalls) ls(ctx context.Context, args Args) (any, error) {
	path, err := args.String(0)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		f.log.Debugw("ls of a path that isn't a readable directory", "Path", path, "Error", err)
		return nil, nil
	}
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = envelope.Encode(filepath.Join(path, e.Name()))
	}
	return out, nil
}

func (f *fsCalls) move(op func(src, dst string) error) Func {
	return func(ctx context.Context, args Args) (any, error) {
		src, err := args.String(0)
		if err != nil {
			return nil, err
		}
		dst, err := args.String(1)
		if err != nil {
			return nil, err
		}
		var opts CopyOptions
		if err := args.Decode(2, &opts); err != nil {
			return nil, err
		}

		srcInfo, err := os.Lstat(src)
		if err != nil {
			f.log.Errorw("source path doesn't exist", "Path", src)
			return false, nil
		}
		if overlaps, err := overlapping(src, srcInfo, dst); err != nil || overlaps {
			f.log.Errorw("source and destination overlap", "Source", src, "Destination", dst, "Error", err)
			return false, nil
		}
		if _, err := os.Lstat(dst); err == nil {
			if !opts.Overwrite {
				f.log.Errorw("destination exists and overwrite is not set", "Path", dst)
				return false, nil
			}
			if err := os.RemoveAll(dst); err != nil {
				f.log.Errorw("error removing destination", "Path", dst, "Error", err)
				return false, nil
			}
		}
		if err := op(src, dst); err != nil {
			f.log.Errorw("error moving path", "Source", src, "Destination", dst, "Error", err)
			return false, nil
		}
		return true, nil
	}
}

// overlapping reports whether moving src to dst would touch src itself:
// both name the same file, dst lies inside src, or src lies inside dst.
func overlapping(src string, srcInfo os.FileInfo, dst string) (bool, error) {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return false, err
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return false, err
	}
	if within(absSrc, absDst) || within(absDst, absSrc) {
		return true, nil
	}
	if dstInfo, err := os.Lstat(dst); err == nil && os.SameFile(srcInfo, dstInfo) {
		return true, nil
	}
	return false, nil
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && filepath.IsLocal(rel)
}

// copyPath copies a file, or a directory tree.
func copyPath(src, dst string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return copyFile(src, dst, fi.Mode())
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (f *fsCalls) download(ctx context.Context, args Args) (any, error) {
	uri, err := args.String(0)
	if err != nil {
		return nil, err
	}
	path, err := args.String(1)
	if err != nil {
		return nil, err
	}
	if err := f.fetch(ctx, uri, path); err != nil {
		f.log.Errorw("download failed", "URI", uri, "Path", path, "Error", err)
		return false, nil
	}
	return true, nil
}

func (f *fsCalls) fetch(ctx context.Context, uri, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("non-200 status code %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("moving download into place: %w", err)
	}
	return nil
}

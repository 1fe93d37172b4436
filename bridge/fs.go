package bridge

import (
	"context"

	"github.com/guseggert/hostbridge/envelope"
)

type WriteOptions struct {
	Append bool `json:"append"`
}

type RmOptions struct {
	Recursive bool `json:"recursive"`
}

// CopyOptions applies to Rename and Copy.
type CopyOptions struct {
	Overwrite bool `json:"overwrite"`
}

// FS works on the host's filesystem. Paths are used as given.
// Operations the host could not carry out report false or absence rather than an error.
type FS struct {
	c *caller
}

// ReadFile returns the contents of path. ok is false when the file can't be read.
func (f *FS) ReadFile(ctx context.Context, path string) (contents string, ok bool, err error) {
	res, err := f.c.query(ctx, "read_file", enc(path))
	if err != nil {
		return "", false, err
	}
	contents, ok = res.String()
	return contents, ok, nil
}

func (f *FS) WriteFile(ctx context.Context, path string, contents []byte, opts WriteOptions) (bool, error) {
	return f.c.boolQuery(ctx, "write_file", enc(path), envelope.EncodeBytes(contents), opts)
}

func (f *FS) Exists(ctx context.Context, path string) (bool, error) {
	return f.c.boolQuery(ctx, "exists", enc(path))
}

func (f *FS) IsDir(ctx context.Context, path string) (bool, error) {
	return f.c.boolQuery(ctx, "is_dir", enc(path))
}

func (f *FS) MkDir(ctx context.Context, path string) (bool, error) {
	return f.c.boolQuery(ctx, "mk_dir", enc(path))
}

func (f *FS) Rm(ctx context.Context, path string, opts RmOptions) (bool, error) {
	return f.c.boolQuery(ctx, "rm", enc(path), opts)
}

// Ls returns the full paths of the entries of dir. ok is false when dir is not a readable directory.
func (f *FS) Ls(ctx context.Context, dir string) (paths []string, ok bool, err error) {
	res, err := f.c.query(ctx, "ls", enc(dir))
	if err != nil {
		return nil, false, err
	}
	if res.IsAbsent() {
		return nil, false, nil
	}
	paths, err = res.Strings()
	if err != nil {
		return nil, false, err
	}
	return paths, true, nil
}

func (f *FS) Rename(ctx context.Context, src, dst string, opts CopyOptions) (bool, error) {
	return f.c.boolQuery(ctx, "rename", enc(src), enc(dst), opts)
}

func (f *FS) Copy(ctx context.Context, src, dst string, opts CopyOptions) (bool, error) {
	return f.c.boolQuery(ctx, "copy", enc(src), enc(dst), opts)
}

func (f *FS) ApplicationDirPath(ctx context.Context) (string, error) {
	res, err := f.c.query(ctx, "get_application_dir_path")
	if err != nil {
		return "", err
	}
	dir, ok := res.String()
	if !ok {
		return "", res.unexpected("path")
	}
	return dir, nil
}

// DownloadURI saves the body of uri at path.
func (f *FS) DownloadURI(ctx context.Context, uri, path string) (bool, error) {
	return f.c.boolQuery(ctx, "download_uri", enc(uri), enc(path))
}

package localfs

import (
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"upscaled/internal/pkg/errors"
	"upscaled/internal/ports"
)

// LocalFS stores objects as files under root. Keys are slash separated and
// may not leave root.
type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

func (l *LocalFS) resolve(objectKey string) (string, error) {
	if !validKey(objectKey) {
		return "", errors.ValidationField("object_key", "invalid object key").WithField("object_key", objectKey)
	}
	return filepath.Join(l.root, filepath.FromSlash(objectKey)), nil
}

func validKey(key string) bool {
	if key == "" || strings.ContainsAny(key, "\\\x00") {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	dst, err := l.resolve(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, "localfs.put", "create object directory")
	}

	// Write beside the target and rename so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, "localfs.put", "create object")
	}
	n, err := io.Copy(tmp, in.Reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return ports.PutObjectOutput{}, errors.Wrap(err, "localfs.put", "write object").WithField("object_key", in.ObjectKey)
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	p, err := l.resolve(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, "", 0, errors.NotFound("object", objectKey)
	}
	if err != nil {
		return nil, "", 0, errors.Wrap(err, "localfs.get", "open object").WithField("object_key", objectKey)
	}

	if st, statErr := f.Stat(); statErr == nil {
		size = st.Size()
	}

	contentType = mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		_, _ = f.Seek(0, io.SeekStart)
		contentType = http.DetectContentType(buf[:n])
	}

	return f, contentType, size, nil
}

func (l *LocalFS) DeleteObject(ctx context.Context, objectKey string) error {
	p, err := l.resolve(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "localfs.delete", "remove object").WithField("object_key", objectKey)
	}
	return nil
}

// Check verifies root exists and is a directory.
func (l *LocalFS) Check(ctx context.Context) error {
	st, err := os.Stat(l.root)
	if err != nil {
		return errors.Wrap(err, "localfs.check", "stat storage root")
	}
	if !st.IsDir() {
		return errors.New(errors.CodeFailedPrecond, "storage root is not a directory").WithField("root", l.root)
	}
	return nil
}

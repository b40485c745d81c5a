package gdrive

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"path"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"upscaled/internal/pkg/errors"
	"upscaled/internal/ports"
)

// Client stores objects in a Drive folder. Uploads are named after the
// requested key; the Drive file id is returned as the key to read back.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.ValidationField("object_key", "object key is required")
	}

	file := &drive.File{Name: path.Clean(in.ObjectKey)}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file).SupportsAllDrives(true)
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, driveError(err, "gdrive.put", in.ObjectKey)
	}

	return ports.PutObjectOutput{ObjectKey: created.Id, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, "", 0, driveError(err, "gdrive.get", objectKey)
	}

	return resp.Body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	err := c.srv.Files.Delete(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil && !isNotFound(err) {
		return driveError(err, "gdrive.delete", objectKey)
	}
	return nil
}

// Check asks Drive who we are, which fails fast on a revoked token.
func (c *Client) Check(ctx context.Context) error {
	if _, err := c.srv.About.Get().Fields("user").Context(ctx).Do(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive.check", "drive unreachable")
	}
	return nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return stderrors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func driveError(err error, op, key string) error {
	if isNotFound(err) {
		return errors.NotFound("object", key)
	}
	return errors.WrapWithCode(err, errors.CodeUnavailable, op, "drive request failed").WithField("object_key", key)
}

// Package source abstracts where document bytes come from: an HTTP upload, a local
// file, an in-memory buffer or an object in storage.
package source

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// Source yields the bytes of one document.
type Source interface {
	// Name is the original file name, possibly empty.
	Name() string
	// Read returns the whole document.
	Read(ctx context.Context) ([]byte, error)
}

// Sized is implemented by sources that know their size before reading.
type Sized interface {
	Size() int64
}

type memory struct {
	name string
	data []byte
}

// FromBytes wraps an in-memory buffer.
func FromBytes(name string, data []byte) Source {
	return &memory{name: name, data: data}
}

func (m *memory) Name() string { return m.name }

func (m *memory) Size() int64 { return int64(len(m.data)) }

func (m *memory) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.data, nil
}

type file struct {
	path string
}

// FromFile reads a file from the local filesystem.
func FromFile(path string) Source {
	return &file{path: path}
}

func (f *file) Name() string { return filepath.Base(f.path) }

func (f *file) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", f.path, err)
	}
	return data, nil
}

type upload struct {
	header *multipart.FileHeader
}

// FromMultipart reads an uploaded form file.
func FromMultipart(header *multipart.FileHeader) Source {
	return &upload{header: header}
}

func (u *upload) Name() string { return u.header.Filename }

func (u *upload) Size() int64 { return u.header.Size }

func (u *upload) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := u.header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", u.header.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %s: %w", u.header.Filename, err)
	}
	return data, nil
}

// ObjectGetter is the read side of object storage.
type ObjectGetter interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

type object struct {
	store ObjectGetter
	key   string
	name  string
}

// FromObject reads key from object storage, reporting name as the file name.
func FromObject(store ObjectGetter, key, name string) Source {
	return &object{store: store, key: key, name: name}
}

func (o *object) Name() string { return o.name }

func (o *object) Read(ctx context.Context) ([]byte, error) {
	rc, err := o.store.Get(ctx, o.key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", o.key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", o.key, err)
	}
	return data, nil
}

package storage

import (
	"context"
	"io"
	"iter"

	"github.com/ruteri/assetcache/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockStorageDriver mocks the StorageDriver interface
type MockStorageDriver struct {
	mock.Mock
	name string
}

var _ interfaces.StorageDriver = (*MockStorageDriver)(nil)

// NewMockStorageDriver returns a mock reporting name from Name()
func NewMockStorageDriver(name string) *MockStorageDriver {
	return &MockStorageDriver{name: name}
}

// IterateObjects mocks the IterateObjects method; the mocked return is a []string
func (m *MockStorageDriver) IterateObjects(ctx context.Context, prefix string) iter.Seq2[string, error] {
	args := m.Called(ctx, prefix)
	names, _ := args.Get(0).([]string)
	err := args.Error(1)
	return func(yield func(string, error) bool) {
		for _, name := range names {
			if !yield(name, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}

// UploadObject mocks the UploadObject method
func (m *MockStorageDriver) UploadObject(ctx context.Context, localPath, objectName string) error {
	args := m.Called(ctx, localPath, objectName)
	return args.Error(0)
}

// DownloadObject mocks the DownloadObject method
func (m *MockStorageDriver) DownloadObject(ctx context.Context, objectName, destinationPath string) error {
	args := m.Called(ctx, objectName, destinationPath)
	return args.Error(0)
}

// DeleteObject mocks the DeleteObject method
func (m *MockStorageDriver) DeleteObject(ctx context.Context, objectName string) error {
	args := m.Called(ctx, objectName)
	return args.Error(0)
}

// Exists mocks the Exists method
func (m *MockStorageDriver) Exists(ctx context.Context, objectName string) (bool, error) {
	args := m.Called(ctx, objectName)
	return args.Bool(0), args.Error(1)
}

// ObjectURI returns mock://{name}/{object}
func (m *MockStorageDriver) ObjectURI(objectName, subPart string) string {
	uri := "mock://" + m.name + "/" + objectName
	if subPart != "" {
		uri += "/" + subPart
	}
	return uri
}

// Bucket returns the mock name
func (m *MockStorageDriver) Bucket() string {
	return m.name
}

// Name returns the mock name
func (m *MockStorageDriver) Name() string {
	return m.name
}

// MockObjectAPI mocks the ObjectAPI interface
type MockObjectAPI struct {
	mock.Mock
}

// ListPage mocks the ListPage method
func (m *MockObjectAPI) ListPage(ctx context.Context, prefix, token string) ([]string, string, error) {
	args := m.Called(ctx, prefix, token)
	names, _ := args.Get(0).([]string)
	return names, args.String(1), args.Error(2)
}

// Upload mocks the Upload method; the uploaded bytes are passed to the mock
func (m *MockObjectAPI) Upload(ctx context.Context, objectName string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	args := m.Called(ctx, objectName, data)
	return args.Error(0)
}

// Download mocks the Download method; a []byte return value is written to w
func (m *MockObjectAPI) Download(ctx context.Context, objectName string, w io.Writer) error {
	args := m.Called(ctx, objectName)
	if data, ok := args.Get(0).([]byte); ok {
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return args.Error(1)
}

// Delete mocks the Delete method
func (m *MockObjectAPI) Delete(ctx context.Context, objectName string) error {
	args := m.Called(ctx, objectName)
	return args.Error(0)
}

// Exists mocks the Exists method
func (m *MockObjectAPI) Exists(ctx context.Context, objectName string) (bool, error) {
	args := m.Called(ctx, objectName)
	return args.Bool(0), args.Error(1)
}

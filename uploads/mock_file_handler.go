package uploads

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

type MockFileHandler struct {
	mock.Mock
}

func (m *MockFileHandler) Save(ctx context.Context, fileName string, data io.Reader) (string, error) {
	args := m.Called(ctx, fileName, data)
	return args.String(0), args.Error(1)
}

func (m *MockFileHandler) Open(ctx context.Context, path string) (io.ReadCloser, func(), error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(func()), args.Error(2)
}

func (m *MockFileHandler) Cleanup(ctx context.Context, path string, imported bool) error {
	args := m.Called(ctx, path, imported)
	return args.Error(0)
}

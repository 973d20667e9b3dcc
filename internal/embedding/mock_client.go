package embedding

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 嵌入客户端的testify mock
type MockClient struct {
	mock.Mock
}

// NewMockClient 创建mock并在测试结束时校验期望
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Embed 实现Client接口
func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	var vec []float32
	if v := args.Get(0); v != nil {
		vec = v.([]float32)
	}
	return vec, args.Error(1)
}

// EmbedBatch 实现Client接口
func (m *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	var vecs [][]float32
	if v := args.Get(0); v != nil {
		vecs = v.([][]float32)
	}
	return vecs, args.Error(1)
}

// Name 实现Client接口
func (m *MockClient) Name() string {
	args := m.Called()
	return args.String(0)
}

package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 大模型客户端的testify mock
// Generate和Chat的可变选项会先合并为GenerateOptions再参与匹配
type MockClient struct {
	mock.Mock
}

// MockClientExpecter 以方法调用的形式声明期望
type MockClientExpecter struct {
	mock *mock.Mock
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

// EXPECT 返回期望声明器
func (m *MockClient) EXPECT() *MockClientExpecter {
	return &MockClientExpecter{mock: &m.Mock}
}

// Generate 实现Client接口
func (m *MockClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	args := m.Called(ctx, prompt, ResolveOptions(options...))
	var resp *Response
	if v := args.Get(0); v != nil {
		resp = v.(*Response)
	}
	return resp, args.Error(1)
}

// Chat 实现Client接口
func (m *MockClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	args := m.Called(ctx, messages, ResolveOptions(options...))
	var resp *Response
	if v := args.Get(0); v != nil {
		resp = v.(*Response)
	}
	return resp, args.Error(1)
}

// Name 实现Client接口
func (m *MockClient) Name() string {
	args := m.Called()
	return args.String(0)
}

// Generate 声明Generate调用的期望
func (e *MockClientExpecter) Generate(ctx, prompt, options interface{}) *mock.Call {
	return e.mock.On("Generate", ctx, prompt, options)
}

// Chat 声明Chat调用的期望
func (e *MockClientExpecter) Chat(ctx, messages, options interface{}) *mock.Call {
	return e.mock.On("Chat", ctx, messages, options)
}

// Name 声明Name调用的期望
func (e *MockClientExpecter) Name() *mock.Call {
	return e.mock.On("Name")
}

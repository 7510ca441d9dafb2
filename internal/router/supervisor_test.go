// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package router_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcprouter/internal/router"
	"github.com/tombee/mcprouter/internal/router/routertesting"
)

func newTestSupervisor(t *testing.T, factory *routertesting.Factory) *router.Supervisor {
	t.Helper()
	return router.NewSupervisor(router.SupervisorConfig{
		Child:   router.ChildSpec{Command: "fake"},
		Factory: factory.ClientFactory(),
	})
}

func TestSupervisorInitializeAllPartialFailure(t *testing.T) {
	factory := routertesting.NewFactory()
	factory.Register("https://c1.example", routertesting.NewFakeClient(nil))
	factory.FailConnect("https://c2.example", errors.New("connection refused"))

	sup := newTestSupervisor(t, factory)

	connected := sup.InitializeAll(context.Background(), []router.Mapping{
		{URL: "https://c1.example"},
		{URL: "https://c2.example"},
	})

	assert.Equal(t, 1, connected)

	status1, ok := sup.Status("https://c1.example")
	require.True(t, ok)
	assert.Equal(t, router.StatusConnected, status1)

	status2, ok := sup.Status("https://c2.example")
	require.True(t, ok)
	assert.Equal(t, router.StatusFailed, status2)
}

func TestSupervisorInitializeAllDedupes(t *testing.T) {
	factory := routertesting.NewFactory()
	factory.Register("https://c1.example", routertesting.NewFakeClient(nil))

	sup := newTestSupervisor(t, factory)

	connected := sup.InitializeAll(context.Background(), []router.Mapping{
		{URL: "https://C1.example/"},
		{URL: "https://c1.example"},
	})

	assert.Equal(t, 1, connected)
	assert.Len(t, sup.AllURLs(), 1)
}

func TestSupervisorPingSuccessAndFailure(t *testing.T) {
	factory := routertesting.NewFactory()
	client := routertesting.NewFakeClient(nil)
	factory.Register("https://c1.example", client)

	sup := newTestSupervisor(t, factory)
	sup.InitializeAll(context.Background(), []router.Mapping{{URL: "https://c1.example"}})

	ok := sup.Ping(context.Background(), "https://c1.example")
	assert.True(t, ok)

	client.WithPingHandler(func(ctx context.Context) error { return errors.New("timeout") })

	for i := 0; i < router.PingFailureThreshold-1; i++ {
		ok = sup.Ping(context.Background(), "https://c1.example")
		assert.False(t, ok)
		status, _ := sup.Status("https://c1.example")
		assert.Equal(t, router.StatusFailed, status)
	}

	ok = sup.Ping(context.Background(), "https://c1.example")
	assert.False(t, ok)
	status, _ := sup.Status("https://c1.example")
	assert.Equal(t, router.StatusDisconnected, status)
}

func TestSupervisorPingOnUnconnectedEndpointIsNoop(t *testing.T) {
	factory := routertesting.NewFactory()
	sup := newTestSupervisor(t, factory)

	assert.False(t, sup.Ping(context.Background(), "https://unknown.example"))
}

func TestSupervisorReconnectClearsFailuresOnSuccess(t *testing.T) {
	factory := routertesting.NewFactory()
	client := routertesting.NewFakeClient(nil)
	factory.Register("https://c1.example", client)

	sup := newTestSupervisor(t, factory)
	sup.InitializeAll(context.Background(), []router.Mapping{{URL: "https://c1.example"}})

	client.WithPingHandler(func(ctx context.Context) error { return errors.New("down") })
	for i := 0; i < router.PingFailureThreshold; i++ {
		sup.Ping(context.Background(), "https://c1.example")
	}
	status, _ := sup.Status("https://c1.example")
	require.Equal(t, router.StatusDisconnected, status)

	ok := sup.Reconnect(context.Background(), "https://c1.example")
	assert.True(t, ok)

	status, _ = sup.Status("https://c1.example")
	assert.Equal(t, router.StatusConnected, status)
}

func TestSupervisorCallOnOneUnknownEndpoint(t *testing.T) {
	factory := routertesting.NewFactory()
	sup := newTestSupervisor(t, factory)

	result := sup.CallOnOne(context.Background(), "https://nope.example", router.ToolCallRequest{Name: "t"}, "")
	assert.True(t, result.IsError)
}

func TestSupervisorCallOnAllConcatenatesAndOrdersByURL(t *testing.T) {
	factory := routertesting.NewFactory()
	respondWith := func(text string) func(ctx context.Context, req router.ToolCallRequest) (*router.ToolCallResult, error) {
		return func(ctx context.Context, req router.ToolCallRequest) (*router.ToolCallResult, error) {
			return router.TextResult(text, false), nil
		}
	}
	factory.Register("https://c2.example", routertesting.NewFakeClient(nil).WithCallHandler(respondWith("fake response from c2")))
	factory.Register("https://c1.example", routertesting.NewFakeClient(nil).WithCallHandler(respondWith("fake response from c1")))

	sup := newTestSupervisor(t, factory)
	sup.InitializeAll(context.Background(), []router.Mapping{
		{URL: "https://c2.example"},
		{URL: "https://c1.example"},
	})

	result := sup.CallOnAll(context.Background(), router.ToolCallRequest{Name: "list"}, nil)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 2)
	assert.Contains(t, result.Content[0].Text, "fake response")
	assert.Equal(t, "fake response from c1", result.Content[0].Text)
	assert.Equal(t, "fake response from c2", result.Content[1].Text)
}

func TestSupervisorCallOnAllNoEndpointsConnected(t *testing.T) {
	factory := routertesting.NewFactory()
	sup := newTestSupervisor(t, factory)

	result := sup.CallOnAll(context.Background(), router.ToolCallRequest{Name: "t"}, nil)
	assert.True(t, result.IsError)
}

func TestSupervisorCallOnAllAggregatesErrorFlag(t *testing.T) {
	factory := routertesting.NewFactory()
	okClient := routertesting.NewFakeClient(nil)
	badClient := routertesting.NewFakeClient(nil).WithCallHandler(
		func(ctx context.Context, req router.ToolCallRequest) (*router.ToolCallResult, error) {
			return router.TextResult("boom", true), nil
		},
	)
	factory.Register("https://c1.example", okClient)
	factory.Register("https://c2.example", badClient)

	sup := newTestSupervisor(t, factory)
	sup.InitializeAll(context.Background(), []router.Mapping{
		{URL: "https://c1.example"},
		{URL: "https://c2.example"},
	})

	result := sup.CallOnAll(context.Background(), router.ToolCallRequest{Name: "t"}, nil)
	assert.True(t, result.IsError)
	assert.Len(t, result.Content, 2)
}

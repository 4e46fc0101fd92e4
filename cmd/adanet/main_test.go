package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/config"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
)

func TestLake_ResolveSolver_SourceRejectsUnknownName(t *testing.T) {
	_, err := resolveSolver(model.RoleSource, "NotARealSolver")
	require.Error(t, err)
}

func TestLake_ResolveSolver_SourceAcceptsDefaultOrEmpty(t *testing.T) {
	s, err := resolveSolver(model.RoleSource, config.DefaultSolver)
	require.NoError(t, err)
	require.NotNil(t, s)

	s, err = resolveSolver(model.RoleSource, "")
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestLake_ResolveSolver_SinkIgnoresSolverName(t *testing.T) {
	s, err := resolveSolver(model.RoleSink, "whatever-this-is-ignored")
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestLake_NewChannelQueue_DiskChannelIsPersistent(t *testing.T) {
	dir := t.TempDir()
	env := config.Env{QueuePath: dir}
	ch := model.Channel{Name: "telemetry", Kind: model.ChannelDisk, QoS: model.DefaultQoS()}

	q, err := newChannelQueue(env, ch)
	require.NoError(t, err)
	defer q.Close()

	q.Put([]byte("hello"))
	require.Equal(t, 1, q.Length())
}

func TestLake_NewChannelQueue_SimulatedChannelIsInMemoryCache(t *testing.T) {
	env := config.Env{QueuePath: t.TempDir()}
	ch := model.Channel{Name: "synthetic", Kind: model.ChannelSimulated, QoS: &model.QoS{QueueSize: 4}}

	q, err := newChannelQueue(env, ch)
	require.NoError(t, err)
	defer q.Close()

	q.Put([]byte("a"))
	q.Put([]byte("b"))
	require.Equal(t, 2, q.Length())
}

func TestLake_WhitelistInterfaces_EmptyLinksMeansNoWhitelist(t *testing.T) {
	require.Nil(t, whitelistInterfaces(&model.Problem{}))
}

func TestLake_WhitelistInterfaces_ListsEveryLinkInterface(t *testing.T) {
	p := &model.Problem{Links: []model.Link{{Interface: "wlan0"}, {Interface: "eth0"}}}
	require.Equal(t, []string{"wlan0", "eth0"}, whitelistInterfaces(p))
}

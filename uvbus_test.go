package uvbus

import (
	"testing"
	"time"

	"github.com/linchenxuan/uvbus/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew verifies that New builds a default application instance.
func TestNew(t *testing.T) {
	app, err := New()
	require.NoError(t, err)
	require.NotNil(t, app)

	assert.NotNil(t, app.Logger, "default logger should not be nil")
	assert.NotNil(t, app.Loop, "default loop should not be nil")
}

// TestStop verifies that Stop runs without panicking.
func TestStop(t *testing.T) {
	app, err := New()
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		app.Stop()
	})
}

// TestAppEchoRoundTrip wires a server and a client through the app
// factories and performs one call over the shared loop.
func TestAppEchoRoundTrip(t *testing.T) {
	app, err := New()
	require.NoError(t, err)

	srv, err := app.NewServer(&rpc.ServerCfg{Address: "inproc://app-echo"})
	require.NoError(t, err)
	defer srv.Free()
	require.NoError(t, srv.Start())
	require.NoError(t, srv.RegisterService("echo", func(req *rpc.Request) {
		require.NoError(t, req.Reply(req.Params))
	}))

	cli, err := app.NewClient(&rpc.ClientCfg{Address: "inproc://app-echo"})
	require.NoError(t, err)
	defer cli.Free()
	require.NoError(t, cli.Connect().Await())

	p := cli.Call("echo", []byte("through the app"))
	require.NoError(t, p.Await())
	assert.Equal(t, "through the app", string(p.Result()))
}

// TestAppPubSub wires a publisher and subscriber through the app
// factories.
func TestAppPubSub(t *testing.T) {
	app, err := New()
	require.NoError(t, err)

	pub, err := app.NewPublisher(&rpc.ServerCfg{Address: "inproc://app-pubsub"})
	require.NoError(t, err)
	defer pub.Free()
	require.NoError(t, pub.Start())

	sub, err := app.NewSubscriber(&rpc.ClientCfg{Address: "inproc://app-pubsub"})
	require.NoError(t, err)
	defer sub.Free()

	var got string
	require.NoError(t, sub.Subscribe("news.*", func(topic string, data []byte) {
		got = topic + "=" + string(data)
	}))
	require.NoError(t, sub.Connect().Await())

	require.NoError(t, pub.Publish("news.sports", []byte("final score")))
	app.Loop.After(30*time.Millisecond, app.Loop.Stop)
	app.Loop.Run()

	assert.Equal(t, "news.sports=final score", got)
}

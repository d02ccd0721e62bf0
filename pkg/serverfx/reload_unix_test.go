//go:build unix

package serverfx

import (
	"context"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/joeydtaylor/steeze-tokenproxy/pkg/broker"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/manifest"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/tokencache"
	"github.com/stretchr/testify/assert"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

type nopTokens struct{}

func (nopTokens) EnsureValid(context.Context, *tokencache.Entry) (string, error) { return "", nil }

type nopForwarder struct{}

func (nopForwarder) Forward(http.ResponseWriter, *http.Request, string, string) error { return nil }

func TestSIGHUPReloadsBroker(t *testing.T) {
	loads := make(chan struct{}, 4)
	b := broker.New(manifest.Config{}, nopTokens{}, nopForwarder{},
		broker.WithLoader(func() (manifest.Config, error) {
			loads <- struct{}{}
			return manifest.Config{Enabled: true}, nil
		}))

	lc := fxtest.NewLifecycle(t)
	registerReload(lc, b, zap.NewNop())
	lc.RequireStart()
	defer lc.RequireStop()

	assert.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))
	select {
	case <-loads:
	case <-time.After(2 * time.Second):
		t.Fatal("reload not triggered")
	}
	assert.Eventually(t, b.Enabled, time.Second, 10*time.Millisecond)
}

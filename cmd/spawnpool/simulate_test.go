package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyflowgames/spawnpool/pkg/config"
	"github.com/happyflowgames/spawnpool/pkg/errors"
)

func runSimulation(t *testing.T, opts simulateOptions) simulationReport {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, simulate(context.Background(), opts, &out))

	var rep simulationReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	return rep
}

func TestSimulate_DefaultLevel(t *testing.T) {
	rep := runSimulation(t, simulateOptions{
		ticks:    30,
		ticksSet: true,
		logLevel: "error",
	})

	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, "ld50", rep.Level)
	assert.Equal(t, uint64(50), rep.Seed)
	assert.Equal(t, 4, rep.PrecreateTicks)
	assert.Equal(t, 30, rep.PlayedTicks)
	assert.Equal(t, 3, rep.Spawned["Good"], "every 10 ticks")
	assert.Equal(t, 2, rep.Pools["Misc"].Active())
	assert.Equal(t, rep.ActiveEntities, rep.Pools["Good"].Active()+rep.Pools["Bad"].Active()+
		rep.Pools["Platform"].Active()+rep.Pools["Misc"].Active())

	require.Len(t, rep.AfterReset, 4)
	for name, s := range rep.AfterReset {
		assert.Zero(t, s.Active(), name)
	}
}

func TestSimulate_SeedIsReproducible(t *testing.T) {
	opts := simulateOptions{ticks: 100, ticksSet: true, seed: 9, seedSet: true, logLevel: "error"}
	a := runSimulation(t, opts)
	b := runSimulation(t, opts)

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.Pools, b.Pools)
	assert.Equal(t, a.Spawned, b.Spawned)
}

func TestSimulate_ConfigFile(t *testing.T) {
	cfg := config.Default()
	cfg.Name = "from-file"
	cfg.Loop.PlayTicks = 12
	path := filepath.Join(t.TempDir(), "pools.toml")
	require.NoError(t, config.Save(path, cfg))

	rep := runSimulation(t, simulateOptions{configFile: path, logLevel: "error"})
	assert.Equal(t, "from-file", rep.Level)
	assert.Equal(t, 12, rep.PlayedTicks)
}

func TestSimulate_Trace(t *testing.T) {
	var spans bytes.Buffer
	runSimulation(t, simulateOptions{
		ticks:       5,
		ticksSet:    true,
		trace:       true,
		logLevel:    "error",
		traceOutput: &spans,
	})
	assert.Contains(t, spans.String(), "spawnpool.play")
}

func TestSimulate_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	delete(cfg.Pools, "misc")
	path := filepath.Join(t.TempDir(), "pools.yaml")
	require.NoError(t, config.Save(path, cfg))

	err := simulate(context.Background(), simulateOptions{configFile: path}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestSimulate_MetricsOutliveTheRun(t *testing.T) {
	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	errc := make(chan error, 1)
	go func() {
		errc <- simulate(ctx, simulateOptions{ticks: 5, ticksSet: true, metricsAddr: addr, logLevel: "error"}, &out)
	}()

	scrape := func() string {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return ""
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}
	require.Eventually(t, func() bool {
		return strings.Contains(scrape(), `spawnpool_precreate_ticks_total{outcome="done"} 1`)
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case err := <-errc:
		t.Fatalf("simulate returned before it was interrupted: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Contains(t, scrape(), "spawnpool_checkouts_total")

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("simulate did not stop after interrupt")
	}

	var rep simulationReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, 5, rep.PlayedTicks)
}

func TestSimulate_MetricsAddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = simulate(context.Background(), simulateOptions{metricsAddr: ln.Addr().String(), logLevel: "error"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

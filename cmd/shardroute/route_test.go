package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"shardroute/pkg/config"
	"shardroute/pkg/topology"
)

const testConfig = `
topology:
  shards:
    - {id: us-a, location: {addr: "10.0.0.1:8081"}}
    - {id: us-b, location: {addr: "10.0.0.2:8081"}}
    - {id: eu-a, location: {addr: "10.1.0.1:8081"}}
    - {id: eu-b, location: {addr: "10.1.0.2:8081"}}
routing:
  components:
    - strategy: directory
      entries: {us: us, eu: eu}
    - strategy: hash
      targets: [a, b]
shadow:
  enabled: true
  topology:
    shards:
      - {id: us-a}
      - {id: us-b}
      - {id: eu-a}
      - {id: eu-b}
`

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", path}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRouteCommand(t *testing.T) {
	out, err := runRoot(t, "route", "eu", "cust-42")
	require.NoError(t, err)

	var info topology.ShardInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.Contains(t, []string{"eu-a", "eu-b"}, info.ID)
	require.True(t, strings.HasPrefix(info.Location.Addr, "10.1.0."))
}

func TestRouteCommand_All(t *testing.T) {
	out, err := runRoot(t, "route", "--all", "", "cust-42")
	require.NoError(t, err)
	lines := strings.Fields(out)
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "eu-"))
	require.True(t, strings.HasPrefix(lines[1], "us-"))
}

func TestRouteCommand_Compare(t *testing.T) {
	out, err := runRoot(t, "route", "--compare", "us", "cust-1")
	require.NoError(t, err)
	require.Contains(t, out, "match=true")
}

func TestRouteCommand_Errors(t *testing.T) {
	_, err := runRoot(t, "route", "apac", "cust-1")
	require.Error(t, err)

	_, err = runRoot(t, "route", "us")
	require.Error(t, err)

	_, err = runRoot(t, "route")
	require.Error(t, err)
}

func TestInitConfig(t *testing.T) {
	cfg, err := initConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	cfg, err = initConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Topology.Shards, 4)

	require.NoError(t, os.WriteFile(path, []byte("unknown_section: 1\n"), 0o600))
	_, err = initConfig(path)
	require.Error(t, err)
}

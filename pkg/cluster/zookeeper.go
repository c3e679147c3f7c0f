package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/goccy/go-yaml"

	"shardroute/pkg/topology"
	"shardroute/pkg/types"
)

const watchRetryDelay = 2 * time.Second

type zkConn interface {
	Children(path string) ([]string, *zk.Stat, error)
	ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error)
	Get(path string) ([]byte, *zk.Stat, error)
	Exists(path string) (bool, *zk.Stat, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	Set(path string, data []byte, version int32) (*zk.Stat, error)
	Delete(path string, version int32) error
	State() zk.State
	Close()
}

// ZKTopology publishes and discovers shards under <root>/shards. Each child node is named
// by its shard ID and holds the shard's Location as YAML.
type ZKTopology struct {
	conn     zkConn
	rootPath string
	retry    time.Duration
}

// servers: ["zk1:2181", "zk2:2181"]
func NewZKTopology(servers []string, rootPath string, sessionTimeout time.Duration) (*ZKTopology, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	return &ZKTopology{conn: conn, rootPath: rootPath, retry: watchRetryDelay}, nil
}

func (m *ZKTopology) Close() error {
	m.conn.Close()
	return nil
}

func (m *ZKTopology) shardsPath() string { return path.Join(m.rootPath, "shards") }

func (m *ZKTopology) ensurePath(p string) error {
	cur := ""
	for _, part := range strings.Split(p, "/") {
		if part == "" {
			continue
		}
		cur = cur + "/" + part
		exists, _, err := m.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = m.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && !errors.Is(err, zk.ErrNodeExists) {
				return err
			}
		}
	}
	return nil
}

// Register publishes shard. An ephemeral node disappears with this session; an existing
// node gets its location overwritten.
func (m *ZKTopology) Register(shard topology.ShardInfo, ephemeral bool) error {
	if shard.ID == "" || strings.Contains(shard.ID, "/") {
		return fmt.Errorf("zk: invalid shard id %q", shard.ID)
	}
	if err := m.waitConnected(10 * time.Second); err != nil {
		return err
	}
	if err := m.ensurePath(m.shardsPath()); err != nil {
		return fmt.Errorf("ensure shards path: %w", err)
	}

	data, err := yaml.Marshal(shard.Location)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}

	var flags int32
	if ephemeral {
		flags = zk.FlagEphemeral
	}
	nodePath := path.Join(m.shardsPath(), shard.ID)
	_, err = m.conn.Create(nodePath, data, flags, zk.WorldACL(zk.PermAll))
	if errors.Is(err, zk.ErrNodeExists) {
		_, err = m.conn.Set(nodePath, data, -1)
	}
	if err != nil {
		return fmt.Errorf("register shard %s: %w", shard.ID, err)
	}

	slog.Info("zk: registered shard", "path", nodePath, "addr", shard.Location.Addr)
	return nil
}

func (m *ZKTopology) Deregister(id types.ShardID) error {
	err := m.conn.Delete(path.Join(m.shardsPath(), id), -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("deregister shard %s: %w", id, err)
	}
	return nil
}

// Load reads the current topology.
func (m *ZKTopology) Load() (*topology.Topology, error) {
	children, _, err := m.conn.Children(m.shardsPath())
	if err != nil {
		return nil, fmt.Errorf("zk children: %w", err)
	}
	return m.build(children)
}

func (m *ZKTopology) build(children []string) (*topology.Topology, error) {
	sort.Strings(children)
	shards := make([]topology.ShardInfo, 0, len(children))
	for _, id := range children {
		data, _, err := m.conn.Get(path.Join(m.shardsPath(), id))
		if errors.Is(err, zk.ErrNoNode) {
			// removed between Children and Get
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("zk get %s: %w", id, err)
		}
		var loc topology.Location
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, &loc); err != nil {
				return nil, fmt.Errorf("decode location of %s: %w", id, err)
			}
		}
		shards = append(shards, topology.ShardInfo{ID: id, Location: loc})
	}
	return topology.New(shards...)
}

// RunWatch rebuilds the topology whenever the set of shards changes and hands it to
// onChange, until ctx is done. Data changes of existing shard nodes are not watched.
func (m *ZKTopology) RunWatch(ctx context.Context, onChange func(*topology.Topology) error) {
	go func() {
		for {
			children, _, ch, err := m.conn.ChildrenW(m.shardsPath())
			if err != nil {
				slog.Warn("zk: ChildrenW failed", "error", err)
				if !m.sleep(ctx) {
					return
				}
				continue
			}

			topo, err := m.build(children)
			if err == nil {
				err = onChange(topo)
			}
			if err != nil {
				slog.Warn("zk: topology not applied", "error", err, "shards", children)
			}

			select {
			case ev := <-ch:
				slog.Debug("zk: event", "type", ev.Type.String(), "path", ev.Path)
			case <-ctx.Done():
				slog.Info("zk: watch stopped")
				return
			}
		}
	}()
}

func (m *ZKTopology) sleep(ctx context.Context) bool {
	t := time.NewTimer(m.retry)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *ZKTopology) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := m.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s, state=%v", timeout, st)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"", TypeFile, false},
		{"file", TypeFile, false},
		{"consul", TypeConsul, false},
		{"etcd", TypeEtcd, false},
		{"zk", TypeZookeeper, false},
		{"zookeeper", TypeZookeeper, false},
		{"s3", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(ProviderConfig{Type: TypeFile})
	assert.Error(t, err)
}

func TestFileProviderLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waypoint.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  recursion_limit: 5\n"), 0o644))

	p, err := New(ProviderConfig{Type: TypeFile, Path: path})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, TypeFile, p.Type())
	data, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(data), "recursion_limit")
}

func TestFileProviderLoadMissing(t *testing.T) {
	p, err := NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	_, err = p.Load(context.Background())
	assert.Error(t, err)
}

func TestFileProviderWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waypoint.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	p, err := NewFileProvider(path)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := p.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o644))

	select {
	case <-changes:
	case <-time.After(3 * time.Second):
		t.Fatal("expected change notification")
	}
}

func TestFileProviderWatchAfterClose(t *testing.T) {
	p, err := NewFileProvider(filepath.Join(t.TempDir(), "x.yaml"))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Watch(context.Background())
	assert.Error(t, err)
}

package wiring_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/grindlemire/graft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/memo/internal/adapters/config"
	"go.trai.ch/memo/internal/app"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/memo/internal/engine/buildcache"
	_ "go.trai.ch/memo/internal/wiring"
)

// TestGraftDependencies ensures that the dependency injection graph is valid
// at compile/test time. It checks that every node declaring a dependency
// actually uses it, and every used dependency is declared.
func TestGraftDependencies(t *testing.T) {
	// graft.AssertDepsValid has a limitation/bug where it infers the dependency ID
	// from the package name of the interface used in Dep[T].
	// Since we use `ports.Executor`, `ports.Logger`, etc., it expects a dependency named "ports".
	// This makes it incompatible with our architecture where multiple distinct nodes
	// implement interfaces from the same `ports` package.
	t.Skip("Skipping Graft validation due to static analysis limitation with shared ports package")
	graft.AssertDepsValid(t, "../../internal")
}

// TestGraftGraphResolves builds the full component graph for a project.
func TestGraftGraphResolves(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, domain.ManifestFileName), []byte("version: \"1\"\n"), 0o600))
	t.Chdir(dir)

	components, _, err := graft.ExecuteFor[*app.Components](context.Background(), graft.DisableCache())
	require.NoError(t, err)
	require.NotNil(t, components.App)
	require.NotNil(t, components.Logger)
	assert.Equal(t, dir, components.Settings.Root)
	assert.NoError(t, components.Close(context.Background()))
}

// TestGraftOfflineDisablesBuildCache checks that the offline override reaches
// the build cache node.
func TestGraftOfflineDisablesBuildCache(t *testing.T) {
	t.Chdir(t.TempDir())

	ctx := config.WithOverrides(context.Background(), map[string]any{config.KeyCacheOffline: true})
	cache, _, err := graft.ExecuteFor[ports.BuildCache](ctx, graft.DisableCache())
	require.NoError(t, err)
	assert.IsType(t, buildcache.Disabled{}, cache)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	require.Len(t, cfg.Catalog.MissionTypes, 2)
	assert.Equal(t, "Maintenance visit", cfg.Catalog.MissionTypes[0].Name)
	assert.Len(t, cfg.Catalog.MissionTypes[1].Tasks, 4)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"base path": "server:\n  base_path: v0\n",
		"empty name": `catalog:
  mission_types:
    - name: ""
      estimated_duration: 10
`,
		"duration": `catalog:
  mission_types:
    - name: Long
      estimated_duration: 1441
`,
		"duplicate": `catalog:
  mission_types:
    - name: A
      estimated_duration: 10
    - name: A
      estimated_duration: 20
`,
		"task duration": `catalog:
  mission_types:
    - name: A
      estimated_duration: 10
      tasks:
        - description: check
          estimated_duration: 0
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptionalMissing(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "missionline.yml"), []byte(GenerateDefault()), 0o644))
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)

	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "not found")
}

package indexconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file and returns Config with raw bytes
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read index config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, data, err
	}

	cfg.setBaseDir(filepath.Dir(path))
	return cfg, data, nil
}

// Parse decodes and validates YAML bytes
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode index config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Hash generates SHA256 hash of one index definition (canonical JSON).
// Stamped on every composition so a snapshot can be traced to its settings.
func Hash(idx *Index) (string, error) {
	// Struct → JSON (결정적 순서, map 키는 정렬됨)
	jsonBytes, err := json.Marshal(idx)
	if err != nil {
		return "", fmt.Errorf("failed to marshal index definition: %w", err)
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

func (c *Config) setBaseDir(dir string) {
	c.baseDir = dir
	for i := range c.Indices {
		c.Indices[i].baseDir = dir
	}
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/weisyn/ptx-sdk-go/client"
	"github.com/weisyn/ptx-sdk-go/types"
	"github.com/weisyn/ptx-sdk-go/wallet"
)

// fileConfig ptxctl.yaml
type fileConfig struct {
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
	Timeout  int    `yaml:"timeout"`
	Keystore string `yaml:"keystore"`
	Scheme   string `yaml:"scheme"`
	Sender   string `yaml:"sender"`
	// GasBudget 币单位的十进制串，如 "0.005"
	GasBudget string `yaml:"gas_budget"`
	Mode      string `yaml:"mode"`
}

// cliConfig 解析后的配置
type cliConfig struct {
	Client    *client.Config
	Keystore  string
	Scheme    wallet.Scheme
	Sender    types.Address // 零值表示取密钥库中的第一个地址
	GasBudget uint64
	Mode      types.ConsistencyMode
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Endpoint:  "http://127.0.0.1:9000",
		Protocol:  string(client.ProtocolHTTP),
		Timeout:   30,
		Keystore:  "~/.ptx/keystore",
		Scheme:    "ed25519",
		GasBudget: "0.005",
		Mode:      string(types.WaitForLocalExecution),
	}
}

// loadConfig 读取配置文件；文件不存在时使用默认值
func loadConfig(path string) (*cliConfig, error) {
	fc := defaultFileConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return fc.resolve()
}

func (fc fileConfig) resolve() (*cliConfig, error) {
	cfg := &cliConfig{
		Client: &client.Config{
			Endpoint: fc.Endpoint,
			Protocol: client.Protocol(fc.Protocol),
			Timeout:  fc.Timeout,
		},
		Keystore: expandHome(fc.Keystore),
		Mode:     types.ConsistencyMode(fc.Mode),
	}

	scheme, err := wallet.ParseScheme(fc.Scheme)
	if err != nil {
		return nil, err
	}
	cfg.Scheme = scheme

	if fc.Sender != "" {
		if cfg.Sender, err = types.ParseAddress(fc.Sender); err != nil {
			return nil, fmt.Errorf("sender: %w", err)
		}
	}

	if cfg.GasBudget, err = types.ParseAmount(fc.GasBudget); err != nil {
		return nil, fmt.Errorf("gas_budget: %w", err)
	}
	if cfg.GasBudget == 0 {
		return nil, fmt.Errorf("gas_budget must be positive")
	}

	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("mode: unknown consistency mode %q", fc.Mode)
	}
	return cfg, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

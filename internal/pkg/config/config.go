// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config 是整个促销核心的配置树，从 YAML 文件加载，个别字段允许环境变量覆盖。
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Infra   InfraConfig   `yaml:"infra"`
	Promo   PromoConfig   `yaml:"promo"`
}

type ServiceConfig struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

type InfraConfig struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
}

type MySQLConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addrs string `yaml:"addrs"`
}

type KafkaConfig struct {
	Brokers string `yaml:"brokers"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type ZookeeperConfig struct {
	Addrs string `yaml:"addrs"`
}

// PromoConfig 是促销域自身的运行参数。
type PromoConfig struct {
	// SweepInterval 是调度器轮询各类到期任务的周期，单位秒。
	SweepIntervalSeconds int `yaml:"sweepIntervalSeconds"`
	// SettlementMaxAttempts 是结算消费失败的最大重试次数，超过后进入死信主题。
	SettlementMaxAttempts int `yaml:"settlementMaxAttempts"`
	// ProductServiceURL 商品中心地址，下单计价读 SKU 快照用。
	ProductServiceURL string `yaml:"productServiceUrl"`
}

var (
	current Config
	once    sync.Once
)

// Load 从指定路径加载配置并应用环境变量覆盖，只允许调用一次。
func Load(path string) (*Config, error) {
	var loadErr error
	once.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("read config file %s: %w", path, err)
			return
		}
		if err := yaml.Unmarshal(data, &current); err != nil {
			loadErr = fmt.Errorf("parse config file %s: %w", path, err)
			return
		}
		applyEnvOverrides(&current)
		applyDefaults(&current)
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return &current, nil
}

// GetCurrentConfig 返回进程内的配置快照，必须在 Load 之后调用。
func GetCurrentConfig() *Config {
	return &current
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.Infra.MySQL.DSN = v
	}
	if v := os.Getenv("REDIS_ADDRS"); v != "" {
		c.Infra.Redis.Addrs = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Infra.Kafka.Brokers = v
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		c.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		c.Infra.Nacos.ServerAddrs = v
	}
	if v := os.Getenv("ZK_ADDRS"); v != "" {
		c.Infra.Zookeeper.Addrs = v
	}
	if v := os.Getenv("PRODUCT_SERVICE_URL"); v != "" {
		c.Promo.ProductServiceURL = v
	}
}

func applyDefaults(c *Config) {
	if c.Infra.Jaeger.Endpoint == "" {
		c.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	}
	if c.Infra.Kafka.Brokers == "" {
		c.Infra.Kafka.Brokers = "localhost:9092"
	}
	if c.Infra.Redis.Addrs == "" {
		c.Infra.Redis.Addrs = "localhost:6379"
	}
	if c.Promo.SweepIntervalSeconds <= 0 {
		c.Promo.SweepIntervalSeconds = 1
	}
	if c.Promo.SettlementMaxAttempts <= 0 {
		c.Promo.SettlementMaxAttempts = 3
	}
	if c.Promo.ProductServiceURL == "" {
		c.Promo.ProductServiceURL = "http://localhost:8081"
	}
}

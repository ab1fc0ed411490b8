package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Shipping ShippingConfig `mapstructure:"shipping"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	OrderResult  string `mapstructure:"order_result"`
	RefundResult string `mapstructure:"refund_result"`
	TopupResult  string `mapstructure:"topup_result"`
}

type BusinessConfig struct {
	TaxRateBP     int `mapstructure:"tax_rate_bp"` // 税率（基点），5% = 500
	MaxRetryCount int `mapstructure:"max_retry_count"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ShippingConfig 运费表配置
// 国际段费率按 国家 -> 运送方式 -> 重量区间 查表；正式环境由外部费率服务下发，
// 这里保留一份 yaml 静态表作为默认实现
type ShippingConfig struct {
	Intl     []IntlRateConfig `mapstructure:"intl"`
	Domestic []DomRateConfig  `mapstructure:"domestic"`
}

type IntlRateConfig struct {
	Country  string `mapstructure:"country"`
	Method   string `mapstructure:"method"`
	MaxGram  int64  `mapstructure:"max_gram"` // 区间上限（含），0 表示不限
	FeeTWD   int64  `mapstructure:"fee_twd"`
	PerKilo  int64  `mapstructure:"per_kilo"` // 超出首重部分每公斤加价
	BaseGram int64  `mapstructure:"base_gram"`
}

type DomRateConfig struct {
	Method string `mapstructure:"method"`
	FeeTWD int64  `mapstructure:"fee_twd"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}

package config

type RedisConfig struct {
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	Password string `mapstructure:"password" json:"password"`
	DB       int    `mapstructure:"db" json:"db"`
}

type ConsulConfig struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
}

type RocketMQConfig struct {
	Host  string `mapstructure:"host" json:"host"`
	Port  int    `mapstructure:"port" json:"port"`
	Group string `mapstructure:"group" json:"group"`
	Topic string `mapstructure:"topic" json:"topic"` //购物车过期消息
}

type JaegerConfig struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
	Name string `mapstructure:"name" json:"name"`
}

//购物车业务参数
type CartConfig struct {
	KeyPrefix     string `mapstructure:"key_prefix" json:"key_prefix"`
	MaxItems      int64  `mapstructure:"max_items" json:"max_items"`           //不同sku的最大数量
	MaxSkuCount   int64  `mapstructure:"max_sku_count" json:"max_sku_count"`   //单个sku最多买几件
	EffectiveTime int64  `mapstructure:"effective_time" json:"effective_time"` //毫秒
	SweepInterval int    `mapstructure:"sweep_interval" json:"sweep_interval"` //秒
	SweepBatch    int64  `mapstructure:"sweep_batch" json:"sweep_batch"`
}

type ServerConfig struct {
	Name         string         `mapstructure:"name" json:"name"` //consul的服务发现用
	Tags         []string       `mapstructure:"tags" json:"tags"`
	Host         string         `mapstructure:"host" json:"host"`
	Port         int            `mapstructure:"port" json:"port"`           //http端口
	GrpcPort     int            `mapstructure:"grpc_port" json:"grpc_port"` //健康检查用，0的话随机取一个
	Debug        bool           `mapstructure:"debug" json:"debug"`
	RedisInfo    RedisConfig    `mapstructure:"redis" json:"redis"`
	ConsulInfo   ConsulConfig   `mapstructure:"consul" json:"consul"`
	RocketMQInfo RocketMQConfig `mapstructure:"rocketmq" json:"rocketmq"`
	JaegerInfo   JaegerConfig   `mapstructure:"jaeger" json:"jaeger"`
	CartInfo     CartConfig     `mapstructure:"cart" json:"cart"`
}

//nacos配置。host为空就直接用本地文件里的server配置
type NacosConfig struct {
	Host      string `mapstructure:"host"`
	Port      uint64 `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	DataId    string `mapstructure:"dataid"`
	Group     string `mapstructure:"group"`
}

//本地配置文件的结构
type FileConfig struct {
	Nacos  NacosConfig  `mapstructure:"nacos"`
	Server ServerConfig `mapstructure:"server"`
}

// WithDefaults fills the cart limits that were left empty.
func (c CartConfig) WithDefaults() CartConfig {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "cart"
	}
	if c.MaxItems <= 0 {
		c.MaxItems = 20
	}
	if c.MaxSkuCount <= 0 {
		c.MaxSkuCount = 200
	}
	if c.EffectiveTime <= 0 {
		c.EffectiveTime = 1800000
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 60
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = 1000
	}
	return c
}

package initialize

import (
	"encoding/json"
	"fmt"

	"github.com/nacos-group/nacos-sdk-go/clients"
	"github.com/nacos-group/nacos-sdk-go/common/constant"
	"github.com/nacos-group/nacos-sdk-go/vo"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"shopcart_srvs/cart_srv/config"
	"shopcart_srvs/cart_srv/global"
)

//测试环境和生产环境隔离开
func GetEnvInfo(env string) bool {
	viper.AutomaticEnv()
	return viper.GetBool(env)
}

func ConfigFileName(debug bool) string {
	if debug {
		return "cart_srv/config-debug.yaml"
	}
	return "cart_srv/config-pro.yaml"
}

// LoadConfig reads the local yaml file. When it names a nacos server the service config is
// pulled from nacos, otherwise the file's own server block is used.
func LoadConfig(fileName string) (config.ServerConfig, config.NacosConfig, error) {
	var fileCfg config.FileConfig
	v := viper.New()
	v.SetConfigFile(fileName)
	if err := v.ReadInConfig(); err != nil {
		return config.ServerConfig{}, config.NacosConfig{}, err
	}
	if err := v.Unmarshal(&fileCfg); err != nil {
		return config.ServerConfig{}, config.NacosConfig{}, err
	}
	serverCfg := fileCfg.Server
	if fileCfg.Nacos.Host != "" {
		content, err := fetchNacosConfig(fileCfg.Nacos)
		if err != nil {
			return config.ServerConfig{}, fileCfg.Nacos, fmt.Errorf("读取nacos配置失败: %w", err)
		}
		serverCfg = config.ServerConfig{}
		if err := json.Unmarshal([]byte(content), &serverCfg); err != nil {
			return config.ServerConfig{}, fileCfg.Nacos, fmt.Errorf("解析nacos配置失败: %w", err)
		}
	}
	serverCfg.CartInfo = serverCfg.CartInfo.WithDefaults()
	return serverCfg, fileCfg.Nacos, nil
}

func fetchNacosConfig(nc config.NacosConfig) (string, error) {
	sc := []constant.ServerConfig{
		{
			IpAddr: nc.Host,
			Port:   nc.Port,
		},
	}
	cc := constant.ClientConfig{
		NamespaceId:         nc.Namespace,
		Username:            nc.User,
		Password:            nc.Password,
		TimeoutMs:           5000,
		NotLoadCacheAtStart: true,
		LogDir:              "tmp/nacos/log",
		CacheDir:            "tmp/nacos/cache",
		RotateTime:          "1h",
		MaxAge:              3,
		LogLevel:            "debug",
	}
	configClient, err := clients.NewConfigClient(
		vo.NacosClientParam{
			ClientConfig:  &cc,
			ServerConfigs: sc,
		},
	)
	if err != nil {
		return "", err
	}
	return configClient.GetConfig(vo.ConfigParam{
		DataId: nc.DataId,
		Group:  nc.Group,
	})
}

func InitConfig(debug bool) {
	serverCfg, nacosCfg, err := LoadConfig(ConfigFileName(debug))
	if err != nil {
		zap.S().Fatalf("读取配置失败: %s", err)
	}
	global.ServerConfig = serverCfg
	global.NacosConfig = nacosCfg
	zap.S().Infof("配置信息: %+v", global.ServerConfig)
}

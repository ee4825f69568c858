package swap_common

import (
	stdLog "log"
	"time"

	"github.com/spf13/viper"
)

const (
	FaceSwapConfigFileName = "faceswap"
)

const (
	PrometheusEnabledFlag  = "prometheus_enabled"
	PrometheusHostPortFlag = "prometheus_host_port"
	PprofEnabledFlag       = "pprof_enabled"
	PprofHostPortFlag      = "pprof_host_port"
)

const (
	DefaultConfigName = "config"
	DefaultConfigPath = "/root/"
)

type HTTPServerCfg struct {
	ListenAddr         string   `mapstructure:"listen_addr"`
	BaseURL            string   `mapstructure:"base_url"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

type StorageCfg struct {
	StaticPath   string `mapstructure:"static_path"`
	UploadPath   string `mapstructure:"upload_path"`
	OutputPath   string `mapstructure:"output_path"`
	TemplatePath string `mapstructure:"template_path"`
}

type NormalizerCfg struct {
	MaxImageDimension   uint `mapstructure:"max_image_dimension"`
	InterpolationMethod int  `mapstructure:"interpolation_method"` // 5
}

type ResultCacheCfg struct {
	CacheCapacity   int `mapstructure:"cache_capacity"`
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
}

type SwapWorkerCfg struct {
	WorkerURL                   string `mapstructure:"worker_url"`
	WorkerCallTimeoutSeconds    int    `mapstructure:"worker_call_timeout_seconds"`
	WorkerMaxAttempts           int    `mapstructure:"worker_max_attempts"`
	WorkerRetryBaseDelaySeconds int    `mapstructure:"worker_retry_base_delay_seconds"`
	SourceFaceIndex             int    `mapstructure:"source_face_index"`
	DestFaceIndex               int    `mapstructure:"dest_face_index"`
}

type ShopifyCfg struct {
	ShopifyAPIKey     string `mapstructure:"shopify_api_key"`
	ShopifyAPISecret  string `mapstructure:"shopify_api_secret"`
	ShopifyAPIVersion string `mapstructure:"shopify_api_version"`
}

type SwapServiceConfig struct {
	HTTPServerCfg  `mapstructure:"http_server"`
	StorageCfg     `mapstructure:"storage"`
	NormalizerCfg  `mapstructure:"normalizer"`
	ResultCacheCfg `mapstructure:"result_cache"`
	SwapWorkerCfg  `mapstructure:"face_swap_worker"`
	ShopifyCfg     `mapstructure:"shopify"`
}

func DefaultSwapServiceConfig() *SwapServiceConfig {
	return &SwapServiceConfig{
		HTTPServerCfg: HTTPServerCfg{
			ListenAddr: "0.0.0.0:8080",
			BaseURL:    "",
			CORSAllowedOrigins: []string{
				"https://novatrx.com",
				"https://your-shopify-store.myshopify.com",
			},
		},

		StorageCfg: StorageCfg{
			StaticPath:   "./static",
			UploadPath:   "./static/uploads",
			OutputPath:   "./static/output",
			TemplatePath: "./templates",
		},

		NormalizerCfg: NormalizerCfg{
			MaxImageDimension:   1024,
			InterpolationMethod: 5,
		},

		ResultCacheCfg: ResultCacheCfg{
			CacheCapacity:   100,
			CacheTTLSeconds: 3600,
		},

		SwapWorkerCfg: SwapWorkerCfg{
			WorkerURL:                   "https://dentro-face-swap.hf.space",
			WorkerCallTimeoutSeconds:    90,
			WorkerMaxAttempts:           3,
			WorkerRetryBaseDelaySeconds: 2,
			SourceFaceIndex:             1,
			DestFaceIndex:               1,
		},

		ShopifyCfg: ShopifyCfg{
			ShopifyAPIVersion: "2023-04",
		},
	}
}

func (cfg *SwapServiceConfig) CacheTTL() time.Duration {
	return time.Duration(cfg.CacheTTLSeconds) * time.Second
}

func (cfg *SwapServiceConfig) WorkerCallTimeout() time.Duration {
	return time.Duration(cfg.WorkerCallTimeoutSeconds) * time.Second
}

func (cfg *SwapServiceConfig) WorkerRetryBaseDelay() time.Duration {
	return time.Duration(cfg.WorkerRetryBaseDelaySeconds) * time.Second
}

func ReadSwapServiceConfig(configName, path string) *SwapServiceConfig {
	cfg := DefaultSwapServiceConfig()
	vCfg := viper.New()
	vCfg.SetConfigName(configName)
	vCfg.AddConfigPath(path)
	err := vCfg.ReadInConfig()
	if err != nil {
		stdLog.Println("server config file not found, load default config")
		return cfg
	}
	err = vCfg.Unmarshal(&cfg)
	if err != nil {
		stdLog.Println("could not unmarshal server config file, load default config")
		return cfg
	}

	return cfg
}

func InitConfig() {
	viper.SetDefault(PrometheusEnabledFlag, true)
	viper.SetDefault(PrometheusHostPortFlag, "localhost:9081")
	viper.SetDefault(PprofEnabledFlag, false)
	viper.SetDefault(PprofHostPortFlag, "localhost:6061")
	viper.SetConfigName(FaceSwapConfigFileName)
	viper.AddConfigPath("$HOME/.faceswap/config")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			stdLog.Println("config file not found, using default configuration")
		} else {
			stdLog.Fatalf("failed to parse config file, exiting: %v", err)
		}
	}
}

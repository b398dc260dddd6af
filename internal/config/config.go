package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"wisefido-pose/internal/models"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled  bool // 关闭后报警事件不落库
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// 姿态数据来源
const (
	SourceMQTT   = "mqtt"   // 订阅 pose/<camera>/landmarks
	SourceStream = "stream" // Redis Streams 消费组
	SourceReplay = "replay" // JSON-lines 回放文件
)

// Config 姿态检测服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	HTTP struct {
		Addr string // 如 ":8090"
	}

	Pose struct {
		// 数据来源
		Source struct {
			Type         string        // mqtt / stream / replay
			Topic        string        // MQTT 订阅主题，如 "pose/+/landmarks"
			Stream       string        // Redis Stream 名称，如 "pose:landmarks:stream"
			Group        string        // 消费者组
			Consumer     string        // 消费者名称
			BlockTimeout time.Duration // XREADGROUP 阻塞时长
			ReplayFile   string        // 回放文件路径
			Mirror       bool          // 是否对 x 坐标做镜像（x' = 1 - x）
			Buffer       int           // 帧缓冲队列长度
		}

		// 检测默认配置（每个新会话的初始配置）
		Detection struct {
			Thresholds   models.ThresholdSet
			Rules        string // 启用的规则，如 "1,2,3,4,5,6"
			Policy       string // or / and / count
			AlertEnabled bool
			MaxFrameGap  time.Duration
		}

		// Redis 缓存配置
		Cache struct {
			StatusKeyPrefix string        // 最新状态键前缀，如 "pose:camera:"
			StatusSuffix    string        // 最新状态键后缀，如 ":status"
			StatusTTL       time.Duration // 最新状态 TTL
			AlertStream     string        // 报警事件流，如 "pose:alerts:stream"
			AlertStreamLen  int64         // 报警事件流最大长度（近似裁剪）
		}

		// 报警输出配置
		Alert struct {
			CommandTopicPrefix string        // 设备命令主题前缀，完整主题为 <prefix><camera>/alert
			WebhookURL         string        // 护理人员通知地址，空表示关闭
			WebhookTimeout     time.Duration // webhook 超时
			WebhookRetries     int           // webhook 重试次数
			WebhookQueue       int           // webhook 异步投递队列长度
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 数据库
	cfg.Database.Enabled = getEnvBool("DB_ENABLED", true)
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	// Redis
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// MQTT
	cfg.MQTT.Enabled = getEnvBool("MQTT_ENABLED", true)
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-pose")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")

	// 数据来源
	cfg.Pose.Source.Type = getEnv("POSE_SOURCE", SourceMQTT)
	cfg.Pose.Source.Topic = getEnv("POSE_TOPIC", "pose/+/landmarks")
	cfg.Pose.Source.Stream = getEnv("POSE_STREAM", "pose:landmarks:stream")
	cfg.Pose.Source.Group = getEnv("POSE_STREAM_GROUP", "pose-engine-group")
	cfg.Pose.Source.Consumer = getEnv("POSE_STREAM_CONSUMER", "pose-engine-1")
	cfg.Pose.Source.BlockTimeout = getEnvDuration("POSE_STREAM_BLOCK", time.Second)
	cfg.Pose.Source.ReplayFile = getEnv("POSE_REPLAY_FILE", "")
	cfg.Pose.Source.Mirror = getEnvBool("POSE_MIRROR", true)
	cfg.Pose.Source.Buffer = getEnvInt("POSE_SOURCE_BUFFER", 64)

	// 检测默认配置
	defaults := models.DefaultThresholds()
	cfg.Pose.Detection.Thresholds = models.ThresholdSet{
		Angle:        getEnvFloat("POSE_TH_ANGLE", defaults.Angle),
		HeadDrop:     getEnvFloat("POSE_TH_HEAD_DROP", defaults.HeadDrop),
		Floor:        getEnvFloat("POSE_TH_FLOOR", defaults.Floor),
		Ratio:        getEnvFloat("POSE_TH_RATIO", defaults.Ratio),
		CenterDrop:   getEnvFloat("POSE_TH_CENTER_DROP", defaults.CenterDrop),
		LyingSeconds: getEnvFloat("POSE_TH_LYING", defaults.LyingSeconds),
	}
	cfg.Pose.Detection.Rules = getEnv("POSE_RULES", "1,2,3,4,5,6")
	cfg.Pose.Detection.Policy = getEnv("POSE_POLICY", string(models.PolicyCount))
	cfg.Pose.Detection.AlertEnabled = getEnvBool("POSE_ALERT_ENABLED", true)
	cfg.Pose.Detection.MaxFrameGap = getEnvDuration("POSE_MAX_FRAME_GAP", time.Second)

	// Redis 缓存
	cfg.Pose.Cache.StatusKeyPrefix = getEnv("CACHE_STATUS_PREFIX", "pose:camera:")
	cfg.Pose.Cache.StatusSuffix = ":status"
	cfg.Pose.Cache.StatusTTL = getEnvDuration("CACHE_STATUS_TTL", 30*time.Second)
	cfg.Pose.Cache.AlertStream = getEnv("CACHE_ALERT_STREAM", "pose:alerts:stream")
	cfg.Pose.Cache.AlertStreamLen = int64(getEnvInt("CACHE_ALERT_STREAM_LEN", 10000))

	// 报警输出
	cfg.Pose.Alert.CommandTopicPrefix = getEnv("ALERT_TOPIC_PREFIX", "pose/")
	cfg.Pose.Alert.WebhookURL = getEnv("ALERT_WEBHOOK_URL", "")
	cfg.Pose.Alert.WebhookTimeout = getEnvDuration("ALERT_WEBHOOK_TIMEOUT", 5*time.Second)
	cfg.Pose.Alert.WebhookRetries = getEnvInt("ALERT_WEBHOOK_RETRIES", 2)
	cfg.Pose.Alert.WebhookQueue = getEnvInt("ALERT_WEBHOOK_QUEUE", 64)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Pose.Source.Type {
	case SourceMQTT:
		if !c.MQTT.Enabled {
			return fmt.Errorf("pose source %q requires MQTT_ENABLED", SourceMQTT)
		}
	case SourceStream:
	case SourceReplay:
		if c.Pose.Source.ReplayFile == "" {
			return fmt.Errorf("pose source %q requires POSE_REPLAY_FILE", SourceReplay)
		}
	default:
		return fmt.Errorf("unknown pose source: %q", c.Pose.Source.Type)
	}

	if err := c.Pose.Detection.Thresholds.Validate(); err != nil {
		return fmt.Errorf("invalid detection thresholds: %w", err)
	}
	if _, err := c.RuleToggles(); err != nil {
		return fmt.Errorf("invalid POSE_RULES: %w", err)
	}
	if _, err := models.ParseCombinePolicy(c.Pose.Detection.Policy); err != nil {
		return fmt.Errorf("invalid POSE_POLICY: %w", err)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid MQTT_QOS: %d", c.MQTT.QoS)
	}
	return nil
}

// RuleToggles 解析启用的规则
func (c *Config) RuleToggles() (models.RuleToggles, error) {
	return models.ParseRuleToggles(c.Pose.Detection.Rules)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

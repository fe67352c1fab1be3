// Package lambdaboot holds the resize Lambda's cold-start bootstrap: AWS
// config, environment configuration, the profile table, and the optional
// outcome ledger and event bus clients.
package lambdaboot

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/nalbam/lambda-s3-resize/internal/blobstore"
	"github.com/nalbam/lambda-s3-resize/internal/keymap"
	"github.com/nalbam/lambda-s3-resize/internal/logging"
	"github.com/nalbam/lambda-s3-resize/internal/pipeline"
	"github.com/nalbam/lambda-s3-resize/internal/profile"
	"github.com/nalbam/lambda-s3-resize/internal/store"
)

// AWSClients holds the AWS SDK clients every invocation uses.
type AWSClients struct {
	Config aws.Config
	S3     *s3.Client
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and creates the S3 and SSM clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		S3:     s3.NewFromConfig(cfg),
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// Config is the environment configuration of the resize Lambda.
type Config struct {
	SourceRoot      string
	DestRoot        string
	WatermarkBucket string
	SafetyMargin    time.Duration
	DefaultBudget   time.Duration
	MaxParallel     int
	Visibility      blobstore.Visibility
	OutcomeTable    string
	EventBus        string
	ProfilesParam   string
}

// LoadConfig reads Config from the process environment.
func LoadConfig() Config {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) Config {
	cfg := Config{
		SourceRoot:      orDefault(getenv("SOURCE_ROOT"), profile.DefaultSourceRoot),
		DestRoot:        orDefault(getenv("DEST_ROOT"), keymap.DefaultDestRoot),
		WatermarkBucket: getenv("WATERMARK_BUCKET"),
		SafetyMargin:    time.Duration(intEnv(getenv, "SAFETY_MARGIN_MS", int(pipeline.DefaultSafetyMargin.Milliseconds()))) * time.Millisecond,
		DefaultBudget:   time.Duration(intEnv(getenv, "DEFAULT_BUDGET_MS", int(pipeline.DefaultBudget.Milliseconds()))) * time.Millisecond,
		MaxParallel:     intEnv(getenv, "MAX_PARALLEL", pipeline.DefaultMaxParallel),
		Visibility:      pipeline.DefaultVisibility,
		OutcomeTable:    getenv("OUTCOME_TABLE_NAME"),
		EventBus:        getenv("EVENT_BUS_NAME"),
		ProfilesParam:   getenv("PROFILES_SSM_PARAM"),
	}
	switch v := blobstore.Visibility(getenv("DERIVATIVE_ACL")); v {
	case "":
	case blobstore.VisibilityPublic, blobstore.VisibilityPrivate:
		cfg.Visibility = v
	default:
		log.Warn().Str("envVar", "DERIVATIVE_ACL").Str("value", string(v)).Msg("Unknown ACL, using default")
	}
	return cfg
}

// Pipeline returns the orchestrator settings.
func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		SafetyMargin:  c.SafetyMargin,
		DefaultBudget: c.DefaultBudget,
		MaxParallel:   c.MaxParallel,
		Visibility:    c.Visibility,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// intEnv parses a positive integer variable, falling back to def with a warning.
func intEnv(getenv func(string) string, name string, def int) int {
	raw := getenv(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Warn().Str("envVar", name).Str("value", raw).Int("default", def).Msg("Invalid numeric setting, using default")
		return def
	}
	return n
}

// GetParameterAPI is the slice of the SSM client LoadProfileTable needs.
type GetParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadProfileTable returns the embedded profile table, or the table stored
// as TOML in the SSM parameter param when one is configured. The override
// is validated exactly like the embedded table.
func LoadProfileTable(ctx context.Context, client GetParameterAPI, param string) (profile.Table, error) {
	if param == "" {
		return profile.DefaultTable(), nil
	}
	start := time.Now()
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{Name: &param})
	if err != nil {
		return profile.Table{}, fmt.Errorf("read profiles from SSM %s: %w", param, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return profile.Table{}, fmt.Errorf("SSM parameter %s has no value", param)
	}
	table, err := profile.ParseTable(*out.Parameter.Value)
	if err != nil {
		return profile.Table{}, fmt.Errorf("SSM parameter %s: %w", param, err)
	}
	log.Debug().Str("param", param).Int("version", table.Version).Dur("elapsed", time.Since(start)).Msg("Profile table loaded from SSM")
	return table, nil
}

// InitOutcomeStore creates the outcome ledger, or returns nil (with a
// warning) when no table is configured.
func InitOutcomeStore(cfg aws.Config, tableName string) *store.OutcomeStore {
	if tableName == "" {
		log.Warn().Str("envVar", "OUTCOME_TABLE_NAME").Msg("Outcome table not set, ledger disabled")
		return nil
	}
	return store.NewOutcomeStore(dynamodb.NewFromConfig(cfg), tableName)
}

// InitEventBridge creates the EventBridge client, or returns nil when no
// bus is configured.
func InitEventBridge(cfg aws.Config, busName string) *eventbridge.Client {
	if busName == "" {
		log.Warn().Str("envVar", "EVENT_BUS_NAME").Msg("Event bus not set, completion events disabled")
		return nil
	}
	return eventbridge.NewFromConfig(cfg)
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}

package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"google.golang.org/api/option"

	pkgerrors "github.com/aardg/massabalans/pkg/errors"
)

type Config struct {
	App      AppConfig
	GCP      GCPConfig
	BigQuery BigQueryConfig
	Monta    MontaConfig
	Report   ReportConfig
	Sheets   SheetsConfig
	Store    StoreConfig
	DB       DBConfig
	Redis    RedisConfig
	PubSub   PubSubConfig
	Metrics  MetricsConfig
}

// Load parses the environment. Connection parameters are checked per command
// through the Require* helpers so that a sheets-only run does not need a DB.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "parsing config")
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "building db dsn")
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MASSABALANS_APP_ENV" default:"local"`
	LogLevel     string `envconfig:"MASSABALANS_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"MASSABALANS_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"MASSABALANS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, AppEnvLocal)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MASSABALANS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MASSABALANS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MASSABALANS_GOOGLE_APPLICATION_CREDENTIALS"`
}

// ClientOptions selects the credentials shared by the BigQuery, Sheets and
// Pub/Sub clients: inline JSON, then a key file, then application defaults.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	if inline := strings.TrimSpace(g.CredentialsJSON); inline != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(inline))}
	}
	if file := strings.TrimSpace(g.ApplicationCredentials); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

type BigQueryConfig struct {
	Dataset           string        `envconfig:"MASSABALANS_BIGQUERY_DATASET"`
	FactTable         string        `envconfig:"MASSABALANS_BIGQUERY_FACT_TABLE" default:"monta_orders"`
	OrderDetailsTable string        `envconfig:"MASSABALANS_BIGQUERY_ORDER_DETAILS_TABLE" default:"monta_order_details"`
	StockDataset      string        `envconfig:"MASSABALANS_BIGQUERY_STOCK_DATASET"`
	StockTable        string        `envconfig:"MASSABALANS_BIGQUERY_STOCK_TABLE" default:"stock"`
	Location          string        `envconfig:"MASSABALANS_BIGQUERY_LOCATION" default:"EU"`
	StagingTTL        time.Duration `envconfig:"MASSABALANS_BIGQUERY_STAGING_TTL" default:"1h"`
}

type MontaConfig struct {
	APIURL    string        `envconfig:"MASSABALANS_MONTA_API_URL"`
	Username  string        `envconfig:"MASSABALANS_MONTA_USERNAME"`
	Password  string        `envconfig:"MASSABALANS_MONTA_PASSWORD"`
	Timeout   time.Duration `envconfig:"MASSABALANS_MONTA_TIMEOUT" default:"30s"`
	PageSize  int           `envconfig:"MASSABALANS_MONTA_PAGE_SIZE" default:"30"`
	MaxOrders int           `envconfig:"MASSABALANS_MONTA_MAX_ORDERS" default:"10000"`
}

type ReportConfig struct {
	Dir          string `envconfig:"MASSABALANS_REPORT_DIR" default:"."`
	FileName     string `envconfig:"MASSABALANS_REPORT_FILE" default:"report_file.csv"`
	CreatedAfter string `envconfig:"MASSABALANS_REPORT_CREATED_AFTER" default:"2023-01-01T00:00:00"`
}

type SheetsConfig struct {
	SpreadsheetID string `envconfig:"MASSABALANS_SHEETS_SPREADSHEET_ID"`
	CatalogPath   string `envconfig:"MASSABALANS_CATALOG_PATH"`
}

type StoreConfig struct {
	Driver    string `envconfig:"MASSABALANS_STORE_DRIVER" default:"bigquery"`
	MergeMode string `envconfig:"MASSABALANS_MERGE_MODE" default:"incremental"`
	Table     string `envconfig:"MASSABALANS_STORE_TABLE" default:"monta_orders"`
}

type DBConfig struct {
	DSN    string `envconfig:"MASSABALANS_DB_DSN"`
	Driver string `envconfig:"MASSABALANS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MASSABALANS_DB_HOST"`
	Port     int    `envconfig:"MASSABALANS_DB_PORT" default:"5432"`
	User     string `envconfig:"MASSABALANS_DB_USER"`
	Password string `envconfig:"MASSABALANS_DB_PASSWORD"`
	Name     string `envconfig:"MASSABALANS_DB_NAME"`
	SSLMode  string `envconfig:"MASSABALANS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MASSABALANS_DB_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int           `envconfig:"MASSABALANS_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"MASSABALANS_DB_CONN_MAX_LIFETIME" default:"1h"`
}

type RedisConfig struct {
	URL         string        `envconfig:"MASSABALANS_REDIS_URL"`
	LockTTL     time.Duration `envconfig:"MASSABALANS_REDIS_LOCK_TTL" default:"30m"`
	DialTimeout time.Duration `envconfig:"MASSABALANS_REDIS_DIAL_TIMEOUT" default:"5s"`
}

// Enabled reports whether a run lock should be taken.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type PubSubConfig struct {
	RunEventsTopic string `envconfig:"MASSABALANS_PUBSUB_RUN_EVENTS_TOPIC"`
}

type MetricsConfig struct {
	PushgatewayURL string `envconfig:"MASSABALANS_PUSHGATEWAY_URL"`
	JobName        string `envconfig:"MASSABALANS_METRICS_JOB" default:"massabalans"`
}

// RequireBigQuery verifies the warehouse parameters before any client is built.
func (c *Config) RequireBigQuery() error {
	return requireVars(map[string]string{
		EnvGCPProjectID:    c.GCP.ProjectID,
		EnvBigQueryDataset: c.BigQuery.Dataset,
	})
}

// RequireMonta verifies the logistics API parameters.
func (c *Config) RequireMonta() error {
	return requireVars(map[string]string{
		EnvMontaAPIURL:   c.Monta.APIURL,
		EnvMontaUsername: c.Monta.Username,
		EnvMontaPassword: c.Monta.Password,
	})
}

// RequireSheets verifies the spreadsheet parameters.
func (c *Config) RequireSheets() error {
	return requireVars(map[string]string{
		EnvSheetsSpreadsheetID: c.Sheets.SpreadsheetID,
	})
}

// RequireDB verifies the SQL store parameters.
func (c *Config) RequireDB() error {
	return requireVars(map[string]string{
		EnvDBDSN:      c.DB.DSN,
		EnvStoreTable: c.Store.Table,
	})
}

func requireVars(values map[string]string) error {
	missing := []string{}
	for name, value := range values {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return pkgerrors.New(pkgerrors.CodeConfiguration, "missing required configuration").
		WithDetails(map[string]any{"missing": missing})
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, DriverSQLite) {
		return nil
	}
	if db.Host == "" && db.User == "" && db.Name == "" {
		// no SQL store configured; RequireDB reports it when a command needs one
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

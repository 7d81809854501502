package config

const EnvPrefix = "MASSABALANS"

const (
	AppEnvLocal = "local"
	AppEnvDev   = "dev"
	AppEnvProd  = "prod"

	DriverBigQuery = "bigquery"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "MASSABALANS_APP_ENV"
	EnvLogLevel = "MASSABALANS_LOG_LEVEL"

	EnvGCPProjectID       = "MASSABALANS_GCP_PROJECT_ID"
	EnvGCPCredentialsJSON = "MASSABALANS_GCP_CREDENTIALS_JSON"

	EnvBigQueryDataset    = "MASSABALANS_BIGQUERY_DATASET"
	EnvBigQueryFactTable  = "MASSABALANS_BIGQUERY_FACT_TABLE"
	EnvBigQueryStockTable = "MASSABALANS_BIGQUERY_STOCK_TABLE"

	EnvMontaAPIURL   = "MASSABALANS_MONTA_API_URL"
	EnvMontaUsername = "MASSABALANS_MONTA_USERNAME"
	EnvMontaPassword = "MASSABALANS_MONTA_PASSWORD"
	EnvMontaPageSize = "MASSABALANS_MONTA_PAGE_SIZE"

	EnvSheetsSpreadsheetID = "MASSABALANS_SHEETS_SPREADSHEET_ID"

	EnvStoreDriver = "MASSABALANS_STORE_DRIVER"
	EnvStoreTable  = "MASSABALANS_STORE_TABLE"
	EnvMergeMode   = "MASSABALANS_MERGE_MODE"

	EnvDBDSN    = "MASSABALANS_DB_DSN"
	EnvDBDriver = "MASSABALANS_DB_DRIVER"
	EnvDBHost   = "MASSABALANS_DB_HOST"
	EnvDBUser   = "MASSABALANS_DB_USER"
	EnvDBName   = "MASSABALANS_DB_NAME"

	EnvRedisURL = "MASSABALANS_REDIS_URL"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- STORE CONFIG TABLE
    -- ==========================================================================
    -- One record per onboarded store, record ID = store key.
    DEFINE TABLE IF NOT EXISTS store_config SCHEMALESS;
    DEFINE FIELD IF NOT EXISTS store_key ON store_config TYPE string;
    DEFINE FIELD IF NOT EXISTS platform ON store_config TYPE string;
    DEFINE FIELD IF NOT EXISTS categories ON store_config TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS soft_categories ON store_config TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS types ON store_config TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS sync_mode ON store_config TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS onboarded_at ON store_config TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS updated_at ON store_config TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS store_config_key ON store_config FIELDS store_key UNIQUE;

    -- ==========================================================================
    -- JOB RECORD TABLE
    -- ==========================================================================
    -- Current job status per store, record ID = store key. Latest snapshot
    -- only; no history is kept.
    DEFINE TABLE IF NOT EXISTS job_record SCHEMALESS;
    DEFINE FIELD IF NOT EXISTS store_key ON job_record TYPE string;
    DEFINE FIELD IF NOT EXISTS state ON job_record TYPE string;
    DEFINE FIELD IF NOT EXISTS progress ON job_record TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS done ON job_record TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS total ON job_record TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS logs ON job_record TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS updated_at ON job_record TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- STOP SENTINEL TABLE
    -- ==========================================================================
    -- Presence of a record = the run for that store may continue.
    -- Deleting it signals a cooperative stop. Record ID = store key.
    DEFINE TABLE IF NOT EXISTS stop_sentinel SCHEMALESS;
    DEFINE FIELD IF NOT EXISTS store_key ON stop_sentinel TYPE string;
    DEFINE FIELD IF NOT EXISTS armed_at ON stop_sentinel TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- DISCOVERY RUN TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS discovery_run SCHEMALESS;
    DEFINE FIELD IF NOT EXISTS trigger ON discovery_run TYPE string;
    DEFINE FIELD IF NOT EXISTS started_at ON discovery_run TYPE datetime;
    DEFINE FIELD IF NOT EXISTS finished_at ON discovery_run TYPE datetime;
`

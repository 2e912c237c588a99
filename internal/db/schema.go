package db

// SchemaSQL contains the ledger schema initialization SQL.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS token_usage SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS session_id ON token_usage TYPE string;
    DEFINE FIELD IF NOT EXISTS provider ON token_usage TYPE string;
    DEFINE FIELD IF NOT EXISTS model ON token_usage TYPE string;
    DEFINE FIELD IF NOT EXISTS prompt_tokens ON token_usage TYPE int;
    DEFINE FIELD IF NOT EXISTS completion_tokens ON token_usage TYPE int;
    DEFINE FIELD IF NOT EXISTS total_tokens ON token_usage TYPE int;
    DEFINE FIELD IF NOT EXISTS duration_ms ON token_usage TYPE int;
    DEFINE FIELD IF NOT EXISTS outcome ON token_usage TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON token_usage TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS token_usage_created ON token_usage FIELDS created_at;
    DEFINE INDEX IF NOT EXISTS token_usage_session ON token_usage FIELDS session_id;
`

package db

// SchemaSQL defines the page, asset and done_record tables.
//
// Page record ids are the conversation id when one exists, so a second
// CREATE for the same conversation fails. Done record ids are the event id.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS asset SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS filename ON asset TYPE string;
    DEFINE FIELD IF NOT EXISTS url ON asset TYPE string;
    DEFINE FIELD IF NOT EXISTS content_type ON asset TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS byte_size ON asset TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS posted_at ON asset TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS created ON asset TYPE datetime DEFAULT time::now();

    DEFINE TABLE IF NOT EXISTS page SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation_id ON page TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS title ON page TYPE string;
    DEFINE FIELD IF NOT EXISTS author ON page TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS body ON page TYPE array<object> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS body[*].type ON page TYPE string;
    DEFINE FIELD IF NOT EXISTS body[*].text ON page TYPE string;
    DEFINE FIELD IF NOT EXISTS linked_assets ON page TYPE array<record<asset>> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS posted_at ON page TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS created ON page TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS page_conversation ON page FIELDS conversation_id;

    DEFINE TABLE IF NOT EXISTS done_record SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS page_id ON done_record TYPE string;
    DEFINE FIELD IF NOT EXISTS created ON done_record TYPE datetime DEFAULT time::now();
`

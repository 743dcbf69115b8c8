package conversation

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	phone TEXT PRIMARY KEY,
	display_name TEXT DEFAULT '',
	unit TEXT DEFAULT '',
	language TEXT DEFAULT '',
	tags TEXT DEFAULT '[]',
	favourite BOOLEAN DEFAULT 0,
	pinned BOOLEAN DEFAULT 0,
	archived BOOLEAN DEFAULT 0,
	response_mode TEXT DEFAULT 'auto',
	summary TEXT DEFAULT '',
	summary_seq INTEGER NOT NULL DEFAULT 0,
	unknown_count INTEGER NOT NULL DEFAULT 0,
	repeat_count INTEGER NOT NULL DEFAULT 0,
	last_intent TEXT DEFAULT '',
	negative_streak INTEGER NOT NULL DEFAULT 0,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	last_sentiment_escalation_at DATETIME,
	last_read_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	phone TEXT NOT NULL,
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	intent TEXT DEFAULT '',
	tier TEXT DEFAULT '',
	lang TEXT DEFAULT '',
	model TEXT DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	kb_files TEXT DEFAULT '[]',
	action TEXT DEFAULT '',
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	summary BOOLEAN DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(phone, seq)
);
CREATE INDEX IF NOT EXISTS idx_messages_phone ON messages(phone, seq);

CREATE TABLE IF NOT EXISTS intent_predictions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	phone TEXT NOT NULL,
	message_text TEXT NOT NULL,
	intent TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	tier TEXT NOT NULL,
	model TEXT DEFAULT '',
	detected_lang TEXT DEFAULT '',
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	feedback TEXT DEFAULT '',
	actual_intent TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_predictions_intent ON intent_predictions(intent);
CREATE INDEX IF NOT EXISTS idx_predictions_feedback ON intent_predictions(feedback);

CREATE TABLE IF NOT EXISTS tags (
	name TEXT PRIMARY KEY COLLATE NOCASE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

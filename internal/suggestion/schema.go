// internal/suggestion/schema.go

package suggestion

// Migrations creates the suggestion tables. Every statement is idempotent.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS suggestions (
		id UUID PRIMARY KEY,
		matchmaker_id BIGINT NOT NULL,
		first_party_id BIGINT NOT NULL,
		second_party_id BIGINT NOT NULL,
		status VARCHAR(40) NOT NULL,
		previous_status VARCHAR(40),
		priority VARCHAR(10) NOT NULL DEFAULT 'MEDIUM',
		internal_notes TEXT NOT NULL DEFAULT '',
		first_party_notes TEXT NOT NULL DEFAULT '',
		second_party_notes TEXT NOT NULL DEFAULT '',
		matching_reason TEXT NOT NULL DEFAULT '',
		requires_rabbinic_approval BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_activity TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_status_change TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
		response_deadline TIMESTAMP WITH TIME ZONE NOT NULL,
		decision_deadline TIMESTAMP WITH TIME ZONE,
		closed_at TIMESTAMP WITH TIME ZONE,
		first_party_sent TIMESTAMP WITH TIME ZONE,
		first_party_responded TIMESTAMP WITH TIME ZONE,
		second_party_sent TIMESTAMP WITH TIME ZONE,
		second_party_responded TIMESTAMP WITH TIME ZONE,
		first_party_approved_at TIMESTAMP WITH TIME ZONE,
		first_party_rank INTEGER,
		first_party_interested_at TIMESTAMP WITH TIME ZONE,
		version INTEGER NOT NULL DEFAULT 1,
		CONSTRAINT suggestions_distinct_parties CHECK (first_party_id <> second_party_id),
		CONSTRAINT suggestions_rank_only_when_waitlisted CHECK (
			(status = 'FIRST_PARTY_INTERESTED') = (first_party_rank IS NOT NULL)
		),
		CONSTRAINT suggestions_rank_positive CHECK (first_party_rank IS NULL OR first_party_rank >= 1),
		CONSTRAINT suggestions_unique_rank UNIQUE (first_party_id, first_party_rank) DEFERRABLE INITIALLY DEFERRED
	)`,

	`CREATE TABLE IF NOT EXISTS suggestion_status_history (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		suggestion_id UUID NOT NULL REFERENCES suggestions(id),
		status VARCHAR(40) NOT NULL,
		reason TEXT,
		notes TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		CONSTRAINT history_unique_instant UNIQUE (suggestion_id, created_at)
	)`,

	`CREATE TABLE IF NOT EXISTS suggestion_meetings (
		id UUID PRIMARY KEY,
		suggestion_id UUID NOT NULL REFERENCES suggestions(id),
		scheduled_date TIMESTAMP WITH TIME ZONE NOT NULL,
		first_party_feedback_status VARCHAR(30),
		second_party_feedback_status VARCHAR(30),
		feedback JSONB NOT NULL DEFAULT '{}',
		notes TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	// History rows are never rewritten
	`CREATE OR REPLACE FUNCTION suggestion_history_append_only() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'suggestion_status_history is append-only';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS suggestion_history_no_rewrite ON suggestion_status_history`,
	`CREATE TRIGGER suggestion_history_no_rewrite
		BEFORE UPDATE OR DELETE ON suggestion_status_history
		FOR EACH ROW EXECUTE FUNCTION suggestion_history_append_only()`,

	`CREATE INDEX IF NOT EXISTS idx_suggestions_first_party ON suggestions(first_party_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_suggestions_second_party ON suggestions(second_party_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_suggestions_matchmaker ON suggestions(matchmaker_id, last_activity DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_suggestions_deadline ON suggestions(response_deadline) WHERE status IN ('PENDING_FIRST_PARTY', 'PENDING_SECOND_PARTY')`,
	`CREATE INDEX IF NOT EXISTS idx_history_suggestion ON suggestion_status_history(suggestion_id, created_at, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_meetings_suggestion ON suggestion_meetings(suggestion_id, scheduled_date DESC)`,
}
